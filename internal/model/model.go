// Package model defines the core domain types for the school-event
// registration system.
package model

import "time"

// Role is the closed set of user roles.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleParticipant Role = "participant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoordinator, RoleParticipant:
		return true
	}
	return false
}

// IsStaff reports whether the role may run check-ins.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleCoordinator
}

// User represents an account. PasswordHash is a bcrypt hash and is never
// serialized.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	School       string    `json:"school"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// Event represents a school event users can register for.
type Event struct {
	ID                   string      `json:"id"`
	Title                string      `json:"title"`
	Description          string      `json:"description"`
	EventDate            time.Time   `json:"event_date"`
	Location             string      `json:"location"`
	MaxParticipants      int         `json:"max_participants"`
	RegistrationDeadline time.Time   `json:"registration_deadline"`
	Status               EventStatus `json:"status"`
	Category             string      `json:"category"`
	RequireApproval      bool        `json:"require_approval"`
	CreatedBy            string      `json:"created_by"`
	CreatedAt            time.Time   `json:"created_at"`

	// RegistrationCount is a read-time projection, not a stored counter.
	RegistrationCount int `json:"registration_count"`
}

// RegistrationStatus is the state of a registration.
// "registered" means created but pending coordinator approval.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "registered"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// Registration links a user to an event. TicketToken is the opaque
// identifier embedded in the scannable ticket; it never leaks the row ID.
type Registration struct {
	ID           string             `json:"id"`
	EventID      string             `json:"event_id"`
	UserID       string             `json:"user_id"`
	Status       RegistrationStatus `json:"status"`
	TicketToken  string             `json:"-"`
	RegisteredAt time.Time          `json:"registration_date"`
}

// WaitlistEntry is an ordered queue position held by a user when an event
// is at capacity. Positions per event are dense and monotonically assigned.
type WaitlistEntry struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckIn marks physical attendance, confirmed by staff. At most one per
// (event, user) pair.
type CheckIn struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// EventCoordinator delegates management rights over one event to a user
// who is not its creator.
type EventCoordinator struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
}

// EventAttachment is a file uploaded for an event by a manager.
type EventAttachment struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Notification is a message addressed to one user. ReadAt is nil while
// unread.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// AuditLog is an append-only record of a privileged or state-changing
// action.
type AuditLog struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	ObjectType string    `json:"object_type"`
	ObjectID   string    `json:"object_id"`
	Snapshot   string    `json:"snapshot"`
	CreatedAt  time.Time `json:"created_at"`
}

// RegistrationReportRow is the flattened projection used by the CSV
// export. EventTitle and Username are empty when the referenced row is
// gone.
type RegistrationReportRow struct {
	ID           string
	EventID      string
	EventTitle   string
	UserID       string
	Username     string
	Status       RegistrationStatus
	RegisteredAt time.Time
}

// SignupRequest is the payload for creating an account.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	School   string `json:"school"`
}

// LoginRequest is the payload for authenticating.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	EventDate            time.Time `json:"event_date"`
	Location             string    `json:"location"`
	MaxParticipants      int       `json:"max_participants"`
	RegistrationDeadline time.Time `json:"registration_deadline"`
	Category             string    `json:"category"`
	RequireApproval      bool      `json:"require_approval"`
}

// EventFilter narrows and orders event listings.
type EventFilter struct {
	Category string
	Status   EventStatus
	Query    string
	SortBy   string // date_asc (default), date_desc, name_asc
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
