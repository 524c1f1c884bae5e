// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procur/school-events/internal/clock"
	"github.com/procur/school-events/internal/model"
	"github.com/procur/school-events/internal/repository"
)

// ErrValidation marks malformed or missing input. Handlers map it to a
// 400 response; wrap it with the field-specific message.
var ErrValidation = errors.New("validation failed")

// RegisterOutcome names the result of a registration attempt.
type RegisterOutcome string

const (
	// OutcomeRegistered: created, pending coordinator approval.
	OutcomeRegistered RegisterOutcome = "registered"
	// OutcomeConfirmed: created and immediately confirmed.
	OutcomeConfirmed RegisterOutcome = "confirmed"
	// OutcomeWaitlisted: event full, queued at the next position.
	OutcomeWaitlisted RegisterOutcome = "waitlisted"
	// OutcomeAlreadyRegistered / OutcomeAlreadyWaitlisted: idempotent no-ops.
	OutcomeAlreadyRegistered RegisterOutcome = "already_registered"
	OutcomeAlreadyWaitlisted RegisterOutcome = "already_waitlisted"
)

// CheckInOutcome names the result of a check-in attempt.
type CheckInOutcome string

const (
	OutcomeCheckedIn        CheckInOutcome = "checked_in"
	OutcomeAlreadyCheckedIn CheckInOutcome = "already_checked_in"
)

// RegistrationStore is the persistence surface the engine needs.
// Implemented by repository.RegistrationRepository.
type RegistrationStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEventForUpdate(ctx context.Context, eventID string) (model.Event, error)
	Find(ctx context.Context, eventID, userID string) (*model.Registration, error)
	GetByID(ctx context.Context, id string) (model.Registration, error)
	FindByToken(ctx context.Context, token string) (*model.Registration, error)
	Count(ctx context.Context, eventID string) (int, error)
	Create(ctx context.Context, reg model.Registration) error
	UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus) error
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	FindWaitlistEntry(ctx context.Context, eventID, userID string) (*model.WaitlistEntry, error)
	MaxWaitlistPosition(ctx context.Context, eventID string) (int, error)
	CreateWaitlistEntry(ctx context.Context, w model.WaitlistEntry) error
	ListWaitlist(ctx context.Context, eventID string) ([]model.WaitlistEntry, error)
	FindCheckIn(ctx context.Context, eventID, userID string) (*model.CheckIn, error)
	CreateCheckIn(ctx context.Context, c model.CheckIn) error
}

// EventDirectory is the read surface over the event catalog.
// Implemented by repository.EventRepository.
type EventDirectory interface {
	GetByID(ctx context.Context, id string) (model.Event, error)
	ListCoordinators(ctx context.Context, eventID string) ([]string, error)
}

// Sink receives notifications and audit records. Implemented by
// repository.NotificationRepository. Writes route through the context
// transaction, so they commit atomically with the primary state change.
type Sink interface {
	CreateNotification(ctx context.Context, n model.Notification) error
	CreateAuditLog(ctx context.Context, a model.AuditLog) error
}

// RegistrationService is the registration engine: it decides whether an
// attempt becomes confirmed, pending approval, or waitlisted, and owns
// approval and check-in transitions.
type RegistrationService struct {
	store  RegistrationStore
	events EventDirectory
	sink   Sink
	clock  clock.Clock
	log    *zap.Logger
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(store RegistrationStore, events EventDirectory, sink Sink, clk clock.Clock, log *zap.Logger) *RegistrationService {
	return &RegistrationService{store: store, events: events, sink: sink, clock: clk, log: log}
}

// Register runs the registration state machine for (actor, event).
//
// The whole sequence runs in one transaction that first locks the event
// row, so concurrent attempts cannot both observe free capacity, and the
// max(position)+1 waitlist assignment stays dense and unique. The
// notification fan-out and audit record commit in the same unit; a
// failure anywhere rolls everything back.
func (s *RegistrationService) Register(ctx context.Context, actor model.User, eventID string) (RegisterOutcome, error) {
	if eventID == "" {
		return "", fmt.Errorf("%w: event id is required", ErrValidation)
	}

	var outcome RegisterOutcome
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.store.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}

		existing, err := s.store.Find(ctx, event.ID, actor.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			outcome = OutcomeAlreadyRegistered
			return nil
		}

		now := s.clock.Now()
		if now.After(event.RegistrationDeadline) {
			return repository.ErrDeadlinePassed
		}

		count, err := s.store.Count(ctx, event.ID)
		if err != nil {
			return err
		}
		if count >= event.MaxParticipants {
			entry, err := s.store.FindWaitlistEntry(ctx, event.ID, actor.ID)
			if err != nil {
				return err
			}
			if entry != nil {
				outcome = OutcomeAlreadyWaitlisted
				return nil
			}
			highest, err := s.store.MaxWaitlistPosition(ctx, event.ID)
			if err != nil {
				return err
			}
			if err := s.store.CreateWaitlistEntry(ctx, model.WaitlistEntry{
				ID:        uuid.New().String(),
				EventID:   event.ID,
				UserID:    actor.ID,
				Position:  highest + 1,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			outcome = OutcomeWaitlisted
			return nil
		}

		status := model.RegistrationConfirmed
		if event.RequireApproval {
			status = model.RegistrationPending
		}
		reg := model.Registration{
			ID:           uuid.New().String(),
			EventID:      event.ID,
			UserID:       actor.ID,
			Status:       status,
			TicketToken:  uuid.New().String(),
			RegisteredAt: now,
		}
		if err := s.store.Create(ctx, reg); err != nil {
			return err
		}

		if err := s.notifyManagers(ctx, event, actor); err != nil {
			return err
		}
		if err := s.sink.CreateAuditLog(ctx, model.AuditLog{
			ID:         uuid.New().String(),
			ActorID:    actor.ID,
			Action:     "register_event",
			ObjectType: "event",
			ObjectID:   event.ID,
			Snapshot:   "user=" + actor.ID,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		if status == model.RegistrationConfirmed {
			outcome = OutcomeConfirmed
		} else {
			outcome = OutcomeRegistered
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.log.Info("registration attempt",
		zap.String("event_id", eventID),
		zap.String("user_id", actor.ID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

// notifyManagers fans a new-registration notification out to the event
// creator and every delegated coordinator, deduplicated.
func (s *RegistrationService) notifyManagers(ctx context.Context, event model.Event, registrant model.User) error {
	coordinators, err := s.events.ListCoordinators(ctx, event.ID)
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	recipients := make([]string, 0, len(coordinators)+1)
	for _, id := range append([]string{event.CreatedBy}, coordinators...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		recipients = append(recipients, id)
	}

	for _, id := range recipients {
		if err := s.sink.CreateNotification(ctx, model.Notification{
			ID:        uuid.New().String(),
			UserID:    id,
			Title:     "New Event Registration",
			Body:      fmt.Sprintf("%s registered for %s", registrant.Username, event.Title),
			CreatedAt: s.clock.Now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// Approve confirms a registration. The actor needs manage rights on the
// event. Approval is idempotent: already-confirmed and cancelled
// registrations are accepted and re-stamped confirmed.
func (s *RegistrationService) Approve(ctx context.Context, actor model.User, eventID, regID string) error {
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

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		reg, err := s.store.GetByID(ctx, regID)
		if err != nil {
			return err
		}
		if reg.EventID != event.ID {
			return repository.ErrNotFound
		}
		if err := s.store.UpdateStatus(ctx, reg.ID, model.RegistrationConfirmed); err != nil {
			return err
		}
		now := s.clock.Now()
		if err := s.sink.CreateNotification(ctx, model.Notification{
			ID:        uuid.New().String(),
			UserID:    reg.UserID,
			Title:     "Registration Approved",
			Body:      fmt.Sprintf("Your registration for %s was approved.", event.Title),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return s.sink.CreateAuditLog(ctx, model.AuditLog{
			ID:         uuid.New().String(),
			ActorID:    actor.ID,
			Action:     "approve_registration",
			ObjectType: "registration",
			ObjectID:   reg.ID,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("registration approved",
		zap.String("registration_id", regID),
		zap.String("actor_id", actor.ID),
	)
	return nil
}

// CheckIn resolves a scanned ticket token to its registration and records
// attendance. Any admin or coordinator may check in any event's ticket;
// delegation is deliberately not consulted here. Returns the matched
// registration so callers can reference the event.
func (s *RegistrationService) CheckIn(ctx context.Context, actor model.User, token string) (CheckInOutcome, model.Registration, error) {
	if !actor.Role.IsStaff() {
		return "", model.Registration{}, repository.ErrForbidden
	}

	var (
		outcome CheckInOutcome
		reg     model.Registration
	)
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		found, err := s.store.FindByToken(ctx, token)
		if err != nil {
			return err
		}
		if found == nil {
			return repository.ErrInvalidToken
		}
		reg = *found

		existing, err := s.store.FindCheckIn(ctx, reg.EventID, reg.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			outcome = OutcomeAlreadyCheckedIn
			return nil
		}

		if err := s.store.CreateCheckIn(ctx, model.CheckIn{
			ID:          uuid.New().String(),
			EventID:     reg.EventID,
			UserID:      reg.UserID,
			CheckedInAt: s.clock.Now(),
		}); err != nil {
			return err
		}
		outcome = OutcomeCheckedIn
		return nil
	})
	if err != nil {
		return "", model.Registration{}, err
	}
	return outcome, reg, nil
}

// TicketRegistration returns the owner's registration for a ticket token.
// Unknown tokens and tokens owned by someone else both report
// ErrInvalidToken so the endpoint cannot be used to probe other users'
// tickets.
func (s *RegistrationService) TicketRegistration(ctx context.Context, owner model.User, token string) (model.Registration, error) {
	found, err := s.store.FindByToken(ctx, token)
	if err != nil {
		return model.Registration{}, err
	}
	if found == nil || found.UserID != owner.ID {
		return model.Registration{}, repository.ErrInvalidToken
	}
	return *found, nil
}

// Waitlist returns the event's waitlist ordered by position ascending.
// No promotion path exists: cancelling a registration does not pull the
// next waitlisted user in.
func (s *RegistrationService) Waitlist(ctx context.Context, eventID string) ([]model.WaitlistEntry, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListWaitlist(ctx, eventID)
}

// ListForEvent returns an event's registrations for a managing actor.
func (s *RegistrationService) ListForEvent(ctx context.Context, actor model.User, eventID string) ([]model.Registration, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ok, err := CanManage(ctx, s.events, actor, event)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repository.ErrForbidden
	}
	return s.store.ListByEvent(ctx, eventID)
}
