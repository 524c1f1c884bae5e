package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procur/school-events/internal/model"
)

// NotificationRepository handles persistence for notifications and the
// audit log.
type NotificationRepository struct {
	db
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db{pool: pool}}
}

// CreateNotification inserts a notification.
func (r *NotificationRepository) CreateNotification(ctx context.Context, n model.Notification) error {
	_, err := r.exec(ctx,
		`INSERT INTO notifications (id, user_id, title, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.UserID, n.Title, n.Body, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// CreateAuditLog appends an audit record.
func (r *NotificationRepository) CreateAuditLog(ctx context.Context, a model.AuditLog) error {
	_, err := r.exec(ctx,
		`INSERT INTO audit_logs (id, actor_id, action, object_type, object_id, snapshot, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.ActorID, a.Action, a.ObjectType, a.ObjectID, a.Snapshot, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListForUser returns the user's notifications, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := r.query(ctx,
		`SELECT id, user_id, title, body, created_at, read_at
		 FROM notifications WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var items []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// CountUnread returns the number of unread notifications for the user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.queryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`,
		userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// GetByID returns a single notification or ErrNotFound.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (model.Notification, error) {
	var n model.Notification
	err := r.queryRow(ctx,
		`SELECT id, user_id, title, body, created_at, read_at
		 FROM notifications WHERE id = $1`,
		id,
	).Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.CreatedAt, &n.ReadAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Notification{}, ErrNotFound
		}
		return model.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// MarkRead stamps the notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, when time.Time) error {
	tag, err := r.exec(ctx,
		`UPDATE notifications SET read_at = $2 WHERE id = $1`, id, when)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
