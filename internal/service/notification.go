package service

import (
	"context"
	"errors"
	"time"

	"github.com/procur/school-events/internal/clock"
	"github.com/procur/school-events/internal/model"
	"github.com/procur/school-events/internal/repository"
)

// NotificationStore is the read/update surface over the notification
// inbox. Implemented by repository.NotificationRepository.
type NotificationStore interface {
	ListForUser(ctx context.Context, userID string) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	GetByID(ctx context.Context, id string) (model.Notification, error)
	MarkRead(ctx context.Context, id string, when time.Time) error
}

// NotificationService exposes a user's notification inbox.
type NotificationService struct {
	store NotificationStore
	clock clock.Clock
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(store NotificationStore, clk clock.Clock) *NotificationService {
	return &NotificationService{store: store, clock: clk}
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor model.User) ([]model.Notification, error) {
	return s.store.ListForUser(ctx, actor.ID)
}

// UnreadCount returns the number of unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, actor model.User) (int, error) {
	return s.store.CountUnread(ctx, actor.ID)
}

// MarkRead stamps one of the actor's notifications as read. Someone
// else's notification reports ErrNotFound rather than ErrForbidden so
// ids cannot be probed.
func (s *NotificationService) MarkRead(ctx context.Context, actor model.User, id string) error {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != actor.ID {
		return repository.ErrNotFound
	}
	if n.ReadAt != nil {
		return nil
	}
	err = s.store.MarkRead(ctx, n.ID, s.clock.Now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}
