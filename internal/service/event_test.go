package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/procur/school-events/internal/clock"
	"github.com/procur/school-events/internal/model"
	"github.com/procur/school-events/internal/repository"
)

func testEventService(t *testing.T) (*EventService, *fakeEvents) {
	t.Helper()
	events := newFakeEvents()
	svc := NewEventService(events, &fakeSink{}, clock.NewFixed(testTime), zap.NewNop(), t.TempDir())
	return svc, events
}

func validCreateRequest() model.CreateEventRequest {
	return model.CreateEventRequest{
		Title:                "Science Fair",
		Description:          "Annual fair",
		EventDate:            testTime.Add(48 * time.Hour),
		Location:             "Main Hall",
		MaxParticipants:      50,
		RegistrationDeadline: testTime.Add(24 * time.Hour),
		Category:             "academic",
	}
}

func TestCanManage(t *testing.T) {
	ctx := context.Background()
	events := newFakeEvents()
	ev := seedEvent(events, model.Event{ID: "evt-1", Title: "Gala", CreatedBy: "u-creator"})
	events.coordinators[ev.ID] = []string{"u-delegate"}

	cases := []struct {
		name  string
		actor model.User
		want  bool
	}{
		{"admin", model.User{ID: "u-x", Role: model.RoleAdmin}, true},
		{"coordinator creator", model.User{ID: "u-creator", Role: model.RoleCoordinator}, true},
		{"participant creator", model.User{ID: "u-creator", Role: model.RoleParticipant}, false},
		{"delegate", model.User{ID: "u-delegate", Role: model.RoleParticipant}, true},
		{"unrelated coordinator", model.User{ID: "u-other", Role: model.RoleCoordinator}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanManage(ctx, events, tc.actor, ev)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCreateEvent(t *testing.T) {
	ctx := context.Background()
	coordinator := model.User{ID: "u-coord", Role: model.RoleCoordinator}

	t.Run("participant forbidden", func(t *testing.T) {
		svc, _ := testEventService(t)
		_, err := svc.Create(ctx, model.User{ID: "u-p", Role: model.RoleParticipant}, validCreateRequest())
		assert.ErrorIs(t, err, repository.ErrForbidden)
	})

	t.Run("rejects blank title", func(t *testing.T) {
		svc, _ := testEventService(t)
		req := validCreateRequest()
		req.Title = "   "
		_, err := svc.Create(ctx, coordinator, req)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects non-positive capacity", func(t *testing.T) {
		svc, _ := testEventService(t)
		req := validCreateRequest()
		req.MaxParticipants = 0
		_, err := svc.Create(ctx, coordinator, req)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("creates upcoming event owned by actor", func(t *testing.T) {
		svc, events := testEventService(t)
		ev, err := svc.Create(ctx, coordinator, validCreateRequest())
		require.NoError(t, err)
		assert.Equal(t, model.EventUpcoming, ev.Status)
		assert.Equal(t, coordinator.ID, ev.CreatedBy)
		assert.Equal(t, testTime, ev.CreatedAt)

		stored, err := events.GetByID(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, ev, stored)
	})
}

func TestToggleStatus(t *testing.T) {
	ctx := context.Background()
	admin := model.User{ID: "u-admin", Role: model.RoleAdmin}

	svc, events := testEventService(t)
	ev := seedEvent(events, model.Event{Title: "Cycle", CreatedBy: admin.ID})

	for _, want := range []model.EventStatus{model.EventOngoing, model.EventCompleted, model.EventUpcoming} {
		got, err := svc.ToggleStatus(ctx, admin, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := svc.ToggleStatus(ctx, model.User{ID: "u-c", Role: model.RoleCoordinator}, ev.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestToggleApproval(t *testing.T) {
	ctx := context.Background()
	creator := model.User{ID: "u-creator", Role: model.RoleCoordinator}

	svc, events := testEventService(t)
	ev := seedEvent(events, model.Event{Title: "Flip", CreatedBy: creator.ID})

	on, err := svc.ToggleApproval(ctx, creator, ev.ID)
	require.NoError(t, err)
	assert.True(t, on)

	off, err := svc.ToggleApproval(ctx, creator, ev.ID)
	require.NoError(t, err)
	assert.False(t, off)

	_, err = svc.ToggleApproval(ctx, model.User{ID: "u-p", Role: model.RoleParticipant}, ev.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestDelegate(t *testing.T) {
	ctx := context.Background()
	creator := model.User{ID: "u-creator", Role: model.RoleCoordinator}

	svc, events := testEventService(t)
	ev := seedEvent(events, model.Event{Title: "Team", CreatedBy: creator.ID})

	require.NoError(t, svc.Delegate(ctx, creator, ev.ID, "u-helper"))
	require.NoError(t, svc.Delegate(ctx, creator, ev.ID, "u-helper"), "re-delegating is a no-op")
	assert.Equal(t, []string{"u-helper"}, events.coordinators[ev.ID])

	err := svc.Delegate(ctx, model.User{ID: "u-p", Role: model.RoleParticipant}, ev.ID, "u-x")
	assert.ErrorIs(t, err, repository.ErrForbidden)

	err = svc.Delegate(ctx, creator, ev.ID, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSaveAttachment(t *testing.T) {
	ctx := context.Background()
	creator := model.User{ID: "u-creator", Role: model.RoleCoordinator}

	svc, events := testEventService(t)
	ev := seedEvent(events, model.Event{Title: "Docs", CreatedBy: creator.ID})

	att, err := svc.SaveAttachment(ctx, creator, ev.ID, "../schedule.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)
	assert.Equal(t, ev.ID, att.EventID)
	assert.True(t, strings.HasPrefix(att.Filename, ev.ID+"_"))
	assert.True(t, strings.HasSuffix(att.Filename, "_schedule.pdf"), "path components must be stripped")

	list, err := svc.Attachments(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.SaveAttachment(ctx, model.User{ID: "u-p", Role: model.RoleParticipant}, ev.ID, "x.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, repository.ErrForbidden)
}
