package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procur/school-events/internal/model"
	"github.com/procur/school-events/internal/repository"
)

func TestWriteUsersCSV(t *testing.T) {
	ctx := context.Background()
	admin := model.User{ID: "u-admin", Role: model.RoleAdmin}

	users := newFakeUsers()
	users.users["u-1"] = model.User{
		ID: "u-1", Username: "alice", Email: "alice@example.org",
		School: "Northside", Role: model.RoleParticipant,
		CreatedAt: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
	}
	svc := NewExportService(&fakeReports{}, users, newFakeEvents())

	t.Run("non-admin forbidden", func(t *testing.T) {
		err := svc.WriteUsersCSV(ctx, model.User{Role: model.RoleCoordinator}, &bytes.Buffer{})
		assert.ErrorIs(t, err, repository.ErrForbidden)
	})

	t.Run("header and rows", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, svc.WriteUsersCSV(ctx, admin, &buf))

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, []string{"id", "username", "email", "school", "role", "created_at"}, records[0])
		assert.Equal(t, []string{"u-1", "alice", "alice@example.org", "Northside", "participant", "2026-01-02 15:04:05"}, records[1])
	})
}

func TestWriteEventsCSV(t *testing.T) {
	ctx := context.Background()
	admin := model.User{ID: "u-admin", Role: model.RoleAdmin}

	events := newFakeEvents()
	seedEvent(events, model.Event{
		ID: "evt-1", Title: "Science Fair", Category: "academic",
		EventDate: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		Location:  "Main Hall", MaxParticipants: 50,
	})
	svc := NewExportService(&fakeReports{}, newFakeUsers(), events)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteEventsCSV(ctx, admin, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"id", "title", "category", "date", "location", "status", "max_participants"}, records[0])
	assert.Equal(t, []string{"evt-1", "Science Fair", "academic", "2026-05-01 10:00:00", "Main Hall", "upcoming", "50"}, records[1])
}

func TestWriteRegistrationsCSV(t *testing.T) {
	ctx := context.Background()
	admin := model.User{ID: "u-admin", Role: model.RoleAdmin}

	reports := &fakeReports{rows: []model.RegistrationReportRow{
		{
			ID: "r-1", EventID: "evt-1", EventTitle: "Science Fair",
			UserID: "u-1", Username: "alice",
			Status:       model.RegistrationConfirmed,
			RegisteredAt: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
		},
		// Event row deleted out from under the registration.
		{
			ID: "r-2", EventID: "evt-gone", EventTitle: "",
			UserID: "u-1", Username: "alice",
			Status:       model.RegistrationPending,
			RegisteredAt: time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC),
		},
	}}
	svc := NewExportService(reports, newFakeUsers(), newFakeEvents())

	var buf bytes.Buffer
	require.NoError(t, svc.WriteRegistrationsCSV(ctx, admin, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"id", "event_id", "event_title", "user_id", "username", "status", "registration_date"}, records[0])
	assert.Equal(t, "Science Fair", records[1][2])
	assert.Equal(t, "", records[2][2], "dangling event ref exports a blank title")
	assert.Equal(t, "registered", records[2][5])
}

func TestEventCalendar(t *testing.T) {
	ctx := context.Background()

	events := newFakeEvents()
	seedEvent(events, model.Event{
		ID:          "evt-1",
		Title:       "Science Fair",
		Description: "Line one\nline two",
		EventDate:   time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		Location:    "Main Hall",
	})
	svc := NewExportService(&fakeReports{}, newFakeUsers(), events)

	body, err := svc.EventCalendar(ctx, "evt-1")
	require.NoError(t, err)

	want := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Procur//EN",
		"BEGIN:VEVENT",
		"SUMMARY:Science Fair",
		"DTSTART:20260501T100000",
		"DTEND:20260501T120000",
		"LOCATION:Main Hall",
		"DESCRIPTION:Line one line two",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")
	assert.Equal(t, want, string(body))

	_, err = svc.EventCalendar(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserCalendar(t *testing.T) {
	ctx := context.Background()
	user := model.User{ID: "u-1"}

	reports := &fakeReports{events: map[string][]model.Event{
		"u-1": {
			{Title: "First", EventDate: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
			{Title: "Second", EventDate: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)},
		},
	}}
	svc := NewExportService(reports, newFakeUsers(), newFakeEvents())

	body, err := svc.UserCalendar(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(body), "BEGIN:VEVENT"))
	assert.Contains(t, string(body), "SUMMARY:First")
	assert.Contains(t, string(body), "SUMMARY:Second")

	empty, err := svc.UserCalendar(ctx, model.User{ID: "u-none"})
	require.NoError(t, err)
	assert.NotContains(t, string(empty), "BEGIN:VEVENT")
}
