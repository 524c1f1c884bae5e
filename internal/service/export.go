package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/procur/school-events/internal/model"
	"github.com/procur/school-events/internal/repository"
)

// ReportStore provides the flattened projections behind CSV exports and
// calendar feeds. Implemented by repository.ReportRepository.
type ReportStore interface {
	RegistrationRows(ctx context.Context) ([]model.RegistrationReportRow, error)
	RegisteredEvents(ctx context.Context, userID string) ([]model.Event, error)
}

// UserLister and EventLister are the catalog reads the exports need.
type UserLister interface {
	List(ctx context.Context) ([]model.User, error)
}

type EventLister interface {
	GetByID(ctx context.Context, id string) (model.Event, error)
	List(ctx context.Context, f model.EventFilter) ([]model.Event, error)
}

// ExportService produces the read-only CSV and ICS projections.
type ExportService struct {
	reports ReportStore
	users   UserLister
	events  EventLister
}

// NewExportService constructs an ExportService.
func NewExportService(reports ReportStore, users UserLister, events EventLister) *ExportService {
	return &ExportService{reports: reports, users: users, events: events}
}

const csvTimeLayout = "2006-01-02 15:04:05"

// WriteUsersCSV streams the users export. Admin only.
func (s *ExportService) WriteUsersCSV(ctx context.Context, actor model.User, w io.Writer) error {
	if actor.Role != model.RoleAdmin {
		return repository.ErrForbidden
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "username", "email", "school", "role", "created_at"}); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	for _, u := range users {
		if err := cw.Write([]string{
			u.ID, u.Username, u.Email, u.School, string(u.Role),
			u.CreatedAt.UTC().Format(csvTimeLayout),
		}); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEventsCSV streams the events export. Admin only.
func (s *ExportService) WriteEventsCSV(ctx context.Context, actor model.User, w io.Writer) error {
	if actor.Role != model.RoleAdmin {
		return repository.ErrForbidden
	}
	events, err := s.events.List(ctx, model.EventFilter{})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "title", "category", "date", "location", "status", "max_participants"}); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	for _, e := range events {
		if err := cw.Write([]string{
			e.ID, e.Title, e.Category,
			e.EventDate.UTC().Format(csvTimeLayout),
			e.Location, string(e.Status),
			strconv.Itoa(e.MaxParticipants),
		}); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRegistrationsCSV streams the registrations export. Admin only.
// Event titles and usernames are blank when the referenced row is gone:
// referential integrity is deliberately not enforced.
func (s *ExportService) WriteRegistrationsCSV(ctx context.Context, actor model.User, w io.Writer) error {
	if actor.Role != model.RoleAdmin {
		return repository.ErrForbidden
	}
	rows, err := s.reports.RegistrationRows(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "event_id", "event_title", "user_id", "username", "status", "registration_date"}); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.ID, r.EventID, r.EventTitle, r.UserID, r.Username,
			string(r.Status),
			r.RegisteredAt.UTC().Format(csvTimeLayout),
		}); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EventCalendar renders a single-event ICS document.
func (s *ExportService) EventCalendar(ctx context.Context, eventID string) ([]byte, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return buildICS([]model.Event{event}), nil
}

// UserCalendar renders an ICS feed of every event the user is registered
// for.
func (s *ExportService) UserCalendar(ctx context.Context, actor model.User) ([]byte, error) {
	events, err := s.reports.RegisteredEvents(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return buildICS(events), nil
}

const (
	icsTimeLayout = "20060102T150405"
	// Events carry no explicit end time; feeds advertise a fixed
	// two-hour duration.
	icsEventDuration = 2 * time.Hour
)

var icsDescriptionReplacer = strings.NewReplacer("\r\n", " ", "\n", " ")

// buildICS renders an RFC 5545 calendar with one VEVENT per event,
// CRLF-joined.
func buildICS(events []model.Event) []byte {
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//Procur//EN"}
	for _, e := range events {
		end := e.EventDate.Add(icsEventDuration)
		lines = append(lines,
			"BEGIN:VEVENT",
			"SUMMARY:"+e.Title,
			"DTSTART:"+e.EventDate.Format(icsTimeLayout),
			"DTEND:"+end.Format(icsTimeLayout),
			"LOCATION:"+e.Location,
			"DESCRIPTION:"+icsDescriptionReplacer.Replace(e.Description),
			"END:VEVENT",
		)
	}
	lines = append(lines, "END:VCALENDAR")
	return []byte(strings.Join(lines, "\r\n"))
}
