package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procur/school-events/internal/clock"
	"github.com/procur/school-events/internal/model"
	"github.com/procur/school-events/internal/repository"
)

// CoordinatorLister exposes an event's delegated coordinators.
type CoordinatorLister interface {
	ListCoordinators(ctx context.Context, eventID string) ([]string, error)
}

// CanManage is the single capability check gating event management:
// admins manage everything, coordinators manage events they created, and
// delegated coordinators manage the events delegated to them.
func CanManage(ctx context.Context, coords CoordinatorLister, actor model.User, event model.Event) (bool, error) {
	if actor.Role == model.RoleAdmin {
		return true, nil
	}
	if actor.Role == model.RoleCoordinator && event.CreatedBy == actor.ID {
		return true, nil
	}
	ids, err := coords.ListCoordinators(ctx, event.ID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == actor.ID {
			return true, nil
		}
	}
	return false, nil
}

// EventStore is the persistence surface for the event catalog.
// Implemented by repository.EventRepository.
type EventStore interface {
	Create(ctx context.Context, e model.Event) error
	GetByID(ctx context.Context, id string) (model.Event, error)
	List(ctx context.Context, f model.EventFilter) ([]model.Event, error)
	UpdateRequireApproval(ctx context.Context, id string, require bool) error
	UpdateStatus(ctx context.Context, id string, status model.EventStatus) error
	ListCoordinators(ctx context.Context, eventID string) ([]string, error)
	AddCoordinator(ctx context.Context, c model.EventCoordinator) error
	CreateAttachment(ctx context.Context, a model.EventAttachment) error
	ListAttachments(ctx context.Context, eventID string) ([]model.EventAttachment, error)
}

// EventService orchestrates event catalog operations.
type EventService struct {
	events     EventStore
	sink       Sink
	clock      clock.Clock
	log        *zap.Logger
	uploadsDir string
}

// NewEventService constructs an EventService.
func NewEventService(events EventStore, sink Sink, clk clock.Clock, log *zap.Logger, uploadsDir string) *EventService {
	return &EventService{events: events, sink: sink, clock: clk, log: log, uploadsDir: uploadsDir}
}

// Create validates the request and inserts the event. Only admins and
// coordinators create events.
func (s *EventService) Create(ctx context.Context, actor model.User, req model.CreateEventRequest) (model.Event, error) {
	if !actor.Role.IsStaff() {
		return model.Event{}, repository.ErrForbidden
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return model.Event{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if req.Location == "" || req.Category == "" {
		return model.Event{}, fmt.Errorf("%w: location and category are required", ErrValidation)
	}
	if req.MaxParticipants <= 0 {
		return model.Event{}, fmt.Errorf("%w: max_participants must be a positive integer", ErrValidation)
	}
	if req.MaxParticipants > 100_000 {
		return model.Event{}, fmt.Errorf("%w: max_participants cannot exceed 100,000", ErrValidation)
	}
	if req.EventDate.IsZero() || req.RegistrationDeadline.IsZero() {
		return model.Event{}, fmt.Errorf("%w: event_date and registration_deadline are required", ErrValidation)
	}

	event := model.Event{
		ID:                   uuid.New().String(),
		Title:                req.Title,
		Description:          req.Description,
		EventDate:            req.EventDate,
		Location:             req.Location,
		MaxParticipants:      req.MaxParticipants,
		RegistrationDeadline: req.RegistrationDeadline,
		Status:               model.EventUpcoming,
		Category:             req.Category,
		RequireApproval:      req.RequireApproval,
		CreatedBy:            actor.ID,
		CreatedAt:            s.clock.Now(),
	}
	if err := s.events.Create(ctx, event); err != nil {
		return model.Event{}, err
	}

	s.log.Info("event created",
		zap.String("event_id", event.ID),
		zap.String("created_by", actor.ID),
	)
	return event, nil
}

// List returns events matching the filter.
func (s *EventService) List(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	return s.events.List(ctx, f)
}

// Get returns a single event.
func (s *EventService) Get(ctx context.Context, id string) (model.Event, error) {
	if id == "" {
		return model.Event{}, fmt.Errorf("%w: event id is required", ErrValidation)
	}
	return s.events.GetByID(ctx, id)
}

// ToggleApproval flips the event's require_approval flag and returns the
// new value. Gated by CanManage.
func (s *EventService) ToggleApproval(ctx context.Context, actor model.User, eventID string) (bool, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return false, err
	}
	ok, err := CanManage(ctx, s.events, actor, event)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, repository.ErrForbidden
	}

	next := !event.RequireApproval
	if err := s.events.UpdateRequireApproval(ctx, event.ID, next); err != nil {
		return false, err
	}
	return next, nil
}

// ToggleStatus cycles the event through upcoming → ongoing → completed →
// upcoming. Admin only.
func (s *EventService) ToggleStatus(ctx context.Context, actor model.User, eventID string) (model.EventStatus, error) {
	if actor.Role != model.RoleAdmin {
		return "", repository.ErrForbidden
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return "", err
	}

	var next model.EventStatus
	switch event.Status {
	case model.EventUpcoming:
		next = model.EventOngoing
	case model.EventOngoing:
		next = model.EventCompleted
	default:
		next = model.EventUpcoming
	}
	if err := s.events.UpdateStatus(ctx, event.ID, next); err != nil {
		return "", err
	}
	return next, nil
}

// Delegate grants a user management rights over the event. Gated by
// CanManage; delegating twice is a no-op.
func (s *EventService) Delegate(ctx context.Context, actor model.User, eventID, userID string) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	ok, err := CanManage(ctx, s.events, actor, event)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrForbidden
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return s.events.AddCoordinator(ctx, model.EventCoordinator{
		ID:      uuid.New().String(),
		EventID: event.ID,
		UserID:  userID,
	})
}

// SaveAttachment stores an uploaded file under the uploads directory and
// records it. Gated by CanManage. The stored name is
// {event_id}_{unix}_{original name} with the original name flattened to
// its base.
func (s *EventService) SaveAttachment(ctx context.Context, actor model.User, eventID, filename string, src io.Reader) (model.EventAttachment, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return model.EventAttachment{}, err
	}
	ok, err := CanManage(ctx, s.events, actor, event)
	if err != nil {
		return model.EventAttachment{}, err
	}
	if !ok {
		return model.EventAttachment{}, repository.ErrForbidden
	}

	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return model.EventAttachment{}, fmt.Errorf("%w: no file selected", ErrValidation)
	}

	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		return model.EventAttachment{}, fmt.Errorf("create uploads dir: %w", err)
	}
	now := s.clock.Now()
	safeName := fmt.Sprintf("%s_%d_%s", event.ID, now.Unix(), filename)
	dst, err := os.Create(filepath.Join(s.uploadsDir, safeName))
	if err != nil {
		return model.EventAttachment{}, fmt.Errorf("create upload: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return model.EventAttachment{}, fmt.Errorf("write upload: %w", err)
	}

	att := model.EventAttachment{
		ID:         uuid.New().String(),
		EventID:    event.ID,
		Filename:   safeName,
		UploadedAt: now,
	}
	if err := s.events.CreateAttachment(ctx, att); err != nil {
		return model.EventAttachment{}, err
	}
	return att, nil
}

// Attachments lists the event's uploaded files.
func (s *EventService) Attachments(ctx context.Context, eventID string) ([]model.EventAttachment, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.events.ListAttachments(ctx, eventID)
}
