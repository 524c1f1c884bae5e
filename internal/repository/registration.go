package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procur/school-events/internal/model"
)

// RegistrationRepository handles persistence for registrations, waitlist
// entries and check-ins.
type RegistrationRepository struct {
	db
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(pool *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db{pool: pool}}
}

// WithTx runs fn in a single transaction. The registration engine wraps
// every state change in one of these so notifications and audit records
// commit atomically with the primary write.
func (r *RegistrationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// GetEventForUpdate acquires an exclusive row-level lock on the event.
//
// Two concurrent registrations must not both observe "count < capacity"
// and both insert; SELECT ... FOR UPDATE serialises them on the event row
// for the duration of the transaction. The same lock guards waitlist
// position assignment, keeping positions dense and monotonic.
func (r *RegistrationRepository) GetEventForUpdate(ctx context.Context, eventID string) (model.Event, error) {
	e, err := scanEvent(r.queryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, fmt.Errorf("lock event row: %w", err)
	}
	return e, nil
}

const registrationColumns = `id, event_id, user_id, status, ticket_token, registered_at`

func scanRegistration(row pgx.Row) (model.Registration, error) {
	var reg model.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.TicketToken, &reg.RegisteredAt)
	return reg, err
}

// Find returns the registration for (event, user), or nil when none
// exists.
func (r *RegistrationRepository) Find(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	reg, err := scanRegistration(r.queryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND user_id = $2`,
		eventID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &reg, nil
}

// GetByID returns a single registration or ErrNotFound.
func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (model.Registration, error) {
	reg, err := scanRegistration(r.queryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Registration{}, ErrNotFound
		}
		return model.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// FindByToken looks a registration up by its ticket token (exact match on
// the dedicated indexed column).
func (r *RegistrationRepository) FindByToken(ctx context.Context, token string) (*model.Registration, error) {
	reg, err := scanRegistration(r.queryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE ticket_token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find registration by token: %w", err)
	}
	return &reg, nil
}

// Count returns the number of registrations for the event, any status.
func (r *RegistrationRepository) Count(ctx context.Context, eventID string) (int, error) {
	var n int
	if err := r.queryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// Create inserts a registration. A (event, user) duplicate maps to
// ErrDuplicate; the caller checks first and treats this as backstop.
func (r *RegistrationRepository) Create(ctx context.Context, reg model.Registration) error {
	_, err := r.exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		reg.ID, reg.EventID, reg.UserID, reg.Status, reg.TicketToken, reg.RegisteredAt,
	)
	if err != nil {
		if uniqueViolation(err) != nil {
			return ErrDuplicate
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// UpdateStatus sets a registration's status.
func (r *RegistrationRepository) UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus) error {
	tag, err := r.exec(ctx,
		`UPDATE registrations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByEvent returns all registrations for an event, oldest first.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 ORDER BY registered_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// FindWaitlistEntry returns the entry for (event, user), or nil.
func (r *RegistrationRepository) FindWaitlistEntry(ctx context.Context, eventID, userID string) (*model.WaitlistEntry, error) {
	var w model.WaitlistEntry
	err := r.queryRow(ctx,
		`SELECT id, event_id, user_id, position, created_at
		 FROM waitlist_entries WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	).Scan(&w.ID, &w.EventID, &w.UserID, &w.Position, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find waitlist entry: %w", err)
	}
	return &w, nil
}

// MaxWaitlistPosition returns the highest position assigned for the
// event, 0 when the waitlist is empty. Callers must hold the event row
// lock so position = max+1 stays unique.
func (r *RegistrationRepository) MaxWaitlistPosition(ctx context.Context, eventID string) (int, error) {
	var max int
	if err := r.queryRow(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM waitlist_entries WHERE event_id = $1`,
		eventID).Scan(&max); err != nil {
		return 0, fmt.Errorf("max waitlist position: %w", err)
	}
	return max, nil
}

// CreateWaitlistEntry inserts a waitlist entry.
func (r *RegistrationRepository) CreateWaitlistEntry(ctx context.Context, w model.WaitlistEntry) error {
	_, err := r.exec(ctx,
		`INSERT INTO waitlist_entries (id, event_id, user_id, position, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		w.ID, w.EventID, w.UserID, w.Position, w.CreatedAt,
	)
	if err != nil {
		if uniqueViolation(err) != nil {
			return ErrDuplicate
		}
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

// ListWaitlist returns the event's waitlist ordered by position.
func (r *RegistrationRepository) ListWaitlist(ctx context.Context, eventID string) ([]model.WaitlistEntry, error) {
	rows, err := r.query(ctx,
		`SELECT id, event_id, user_id, position, created_at
		 FROM waitlist_entries WHERE event_id = $1 ORDER BY position ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	defer rows.Close()

	var entries []model.WaitlistEntry
	for rows.Next() {
		var w model.WaitlistEntry
		if err := rows.Scan(&w.ID, &w.EventID, &w.UserID, &w.Position, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		entries = append(entries, w)
	}
	return entries, rows.Err()
}

// FindCheckIn returns the check-in for (event, user), or nil.
func (r *RegistrationRepository) FindCheckIn(ctx context.Context, eventID, userID string) (*model.CheckIn, error) {
	var c model.CheckIn
	err := r.queryRow(ctx,
		`SELECT id, event_id, user_id, checked_in_at
		 FROM checkins WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	).Scan(&c.ID, &c.EventID, &c.UserID, &c.CheckedInAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find checkin: %w", err)
	}
	return &c, nil
}

// CreateCheckIn inserts a check-in record.
func (r *RegistrationRepository) CreateCheckIn(ctx context.Context, c model.CheckIn) error {
	_, err := r.exec(ctx,
		`INSERT INTO checkins (id, event_id, user_id, checked_in_at)
		 VALUES ($1, $2, $3, $4)`,
		c.ID, c.EventID, c.UserID, c.CheckedInAt,
	)
	if err != nil {
		if uniqueViolation(err) != nil {
			return ErrDuplicate
		}
		return fmt.Errorf("insert checkin: %w", err)
	}
	return nil
}
