package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procur/school-events/internal/model"
)

// EventRepository handles persistence for events, coordinator delegations
// and attachments.
type EventRepository struct {
	db
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db{pool: pool}}
}

const eventColumns = `id, title, description, event_date, location, max_participants,
	registration_deadline, status, category, require_approval, created_by, created_at`

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.EventDate, &e.Location, &e.MaxParticipants,
		&e.RegistrationDeadline, &e.Status, &e.Category, &e.RequireApproval, &e.CreatedBy, &e.CreatedAt,
	)
	return e, err
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, e model.Event) error {
	_, err := r.exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Title, e.Description, e.EventDate, e.Location, e.MaxParticipants,
		e.RegistrationDeadline, e.Status, e.Category, e.RequireApproval, e.CreatedBy, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (model.Event, error) {
	e, err := scanEvent(r.queryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// List returns events matching the filter, each carrying its current
// registration count.
func (r *EventRepository) List(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	sql := `SELECT ` + eventColumns + `,
		(SELECT COUNT(*) FROM registrations reg WHERE reg.event_id = events.id)
		FROM events`

	var (
		conds []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, `category = $`+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, `status = $`+strconv.Itoa(len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, `(title ILIKE $`+n+` OR description ILIKE $`+n+
			` OR location ILIKE $`+n+` OR category ILIKE $`+n+`)`)
	}
	for i, c := range conds {
		if i == 0 {
			sql += ` WHERE ` + c
		} else {
			sql += ` AND ` + c
		}
	}

	switch f.SortBy {
	case "date_desc":
		sql += ` ORDER BY event_date DESC`
	case "name_asc":
		sql += ` ORDER BY title ASC`
	default:
		sql += ` ORDER BY event_date ASC`
	}

	rows, err := r.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.EventDate, &e.Location, &e.MaxParticipants,
			&e.RegistrationDeadline, &e.Status, &e.Category, &e.RequireApproval, &e.CreatedBy, &e.CreatedAt,
			&e.RegistrationCount,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// UpdateRequireApproval sets the approval flag.
func (r *EventRepository) UpdateRequireApproval(ctx context.Context, id string, require bool) error {
	tag, err := r.exec(ctx,
		`UPDATE events SET require_approval = $2 WHERE id = $1`, id, require)
	if err != nil {
		return fmt.Errorf("update require_approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus sets the lifecycle status.
func (r *EventRepository) UpdateStatus(ctx context.Context, id string, status model.EventStatus) error {
	tag, err := r.exec(ctx,
		`UPDATE events SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCoordinators returns the user IDs delegated to manage the event.
func (r *EventRepository) ListCoordinators(ctx context.Context, eventID string) ([]string, error) {
	rows, err := r.query(ctx,
		`SELECT user_id FROM event_coordinators WHERE event_id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list coordinators: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan coordinator: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddCoordinator delegates management rights; adding the same user twice
// is a no-op.
func (r *EventRepository) AddCoordinator(ctx context.Context, c model.EventCoordinator) error {
	_, err := r.exec(ctx,
		`INSERT INTO event_coordinators (id, event_id, user_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (event_id, user_id) DO NOTHING`,
		c.ID, c.EventID, c.UserID,
	)
	if err != nil {
		return fmt.Errorf("add coordinator: %w", err)
	}
	return nil
}

// CreateAttachment records an uploaded file.
func (r *EventRepository) CreateAttachment(ctx context.Context, a model.EventAttachment) error {
	_, err := r.exec(ctx,
		`INSERT INTO event_attachments (id, event_id, filename, uploaded_at)
		 VALUES ($1, $2, $3, $4)`,
		a.ID, a.EventID, a.Filename, a.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

// ListAttachments returns the event's attachments, newest first.
func (r *EventRepository) ListAttachments(ctx context.Context, eventID string) ([]model.EventAttachment, error) {
	rows, err := r.query(ctx,
		`SELECT id, event_id, filename, uploaded_at
		 FROM event_attachments WHERE event_id = $1
		 ORDER BY uploaded_at DESC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var atts []model.EventAttachment
	for rows.Next() {
		var a model.EventAttachment
		if err := rows.Scan(&a.ID, &a.EventID, &a.Filename, &a.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}
