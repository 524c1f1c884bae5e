package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procur/school-events/internal/model"
)

// ReportRepository provides the read-only projections behind the CSV and
// calendar exports. Joins are LEFT OUTER on purpose: a registration may
// reference a deleted event or user and must still appear in the export.
type ReportRepository struct {
	db
}

// NewReportRepository constructs a ReportRepository.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{db: db{pool: pool}}
}

// RegistrationRows returns every registration joined with event title and
// username, blanks where the reference is dangling.
func (r *ReportRepository) RegistrationRows(ctx context.Context) ([]model.RegistrationReportRow, error) {
	rows, err := r.query(ctx,
		`SELECT reg.id, reg.event_id, COALESCE(e.title, ''),
		        reg.user_id, COALESCE(u.username, ''),
		        reg.status, reg.registered_at
		 FROM registrations reg
		 LEFT JOIN events e ON e.id = reg.event_id
		 LEFT JOIN users u ON u.id = reg.user_id
		 ORDER BY reg.registered_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("registration report rows: %w", err)
	}
	defer rows.Close()

	var out []model.RegistrationReportRow
	for rows.Next() {
		var row model.RegistrationReportRow
		if err := rows.Scan(&row.ID, &row.EventID, &row.EventTitle,
			&row.UserID, &row.Username, &row.Status, &row.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RegisteredEvents returns the events the user holds a registration for,
// soonest first. Used by the personal calendar feed; dangling
// registrations are skipped.
func (r *ReportRepository) RegisteredEvents(ctx context.Context, userID string) ([]model.Event, error) {
	rows, err := r.query(ctx,
		`SELECT e.id, e.title, e.description, e.event_date, e.location, e.max_participants,
		        e.registration_deadline, e.status, e.category, e.require_approval, e.created_by, e.created_at
		 FROM registrations reg
		 JOIN events e ON e.id = reg.event_id
		 WHERE reg.user_id = $1
		 ORDER BY e.event_date ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("registered events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
