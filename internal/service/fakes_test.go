package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/procur/school-events/internal/model"
	"github.com/procur/school-events/internal/repository"
)

// In-memory fakes for the service-level store interfaces. WithTx runs the
// callback directly; transactional semantics are the repository's concern.

type fakeEvents struct {
	events       map[string]model.Event
	coordinators map[string][]string
	attachments  map[string][]model.EventAttachment
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		events:       map[string]model.Event{},
		coordinators: map[string][]string{},
		attachments:  map[string][]model.EventAttachment{},
	}
}

func (f *fakeEvents) Create(_ context.Context, e model.Event) error {
	f.events[e.ID] = e
	return nil
}

func (f *fakeEvents) GetByID(_ context.Context, id string) (model.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return model.Event{}, repository.ErrNotFound
	}
	return e, nil
}

func (f *fakeEvents) List(_ context.Context, filter model.EventFilter) ([]model.Event, error) {
	var out []model.Event
	for _, e := range f.events {
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.Before(out[j].EventDate) })
	return out, nil
}

func (f *fakeEvents) UpdateRequireApproval(_ context.Context, id string, require bool) error {
	e, ok := f.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.RequireApproval = require
	f.events[id] = e
	return nil
}

func (f *fakeEvents) UpdateStatus(_ context.Context, id string, status model.EventStatus) error {
	e, ok := f.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = status
	f.events[id] = e
	return nil
}

func (f *fakeEvents) ListCoordinators(_ context.Context, eventID string) ([]string, error) {
	return f.coordinators[eventID], nil
}

func (f *fakeEvents) AddCoordinator(_ context.Context, c model.EventCoordinator) error {
	for _, id := range f.coordinators[c.EventID] {
		if id == c.UserID {
			return nil
		}
	}
	f.coordinators[c.EventID] = append(f.coordinators[c.EventID], c.UserID)
	return nil
}

func (f *fakeEvents) CreateAttachment(_ context.Context, a model.EventAttachment) error {
	f.attachments[a.EventID] = append(f.attachments[a.EventID], a)
	return nil
}

func (f *fakeEvents) ListAttachments(_ context.Context, eventID string) ([]model.EventAttachment, error) {
	return f.attachments[eventID], nil
}

type fakeRegs struct {
	events        *fakeEvents
	registrations map[string]model.Registration
	waitlist      []model.WaitlistEntry
	checkins      []model.CheckIn
}

func newFakeRegs(events *fakeEvents) *fakeRegs {
	return &fakeRegs{events: events, registrations: map[string]model.Registration{}}
}

func (f *fakeRegs) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeRegs) GetEventForUpdate(ctx context.Context, eventID string) (model.Event, error) {
	return f.events.GetByID(ctx, eventID)
}

func (f *fakeRegs) Find(_ context.Context, eventID, userID string) (*model.Registration, error) {
	for _, r := range f.registrations {
		if r.EventID == eventID && r.UserID == userID {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRegs) GetByID(_ context.Context, id string) (model.Registration, error) {
	r, ok := f.registrations[id]
	if !ok {
		return model.Registration{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeRegs) FindByToken(_ context.Context, token string) (*model.Registration, error) {
	for _, r := range f.registrations {
		if r.TicketToken == token {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRegs) Count(_ context.Context, eventID string) (int, error) {
	n := 0
	for _, r := range f.registrations {
		if r.EventID == eventID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRegs) Create(_ context.Context, reg model.Registration) error {
	for _, r := range f.registrations {
		if r.EventID == reg.EventID && r.UserID == reg.UserID {
			return repository.ErrDuplicate
		}
	}
	f.registrations[reg.ID] = reg
	return nil
}

func (f *fakeRegs) UpdateStatus(_ context.Context, id string, status model.RegistrationStatus) error {
	r, ok := f.registrations[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Status = status
	f.registrations[id] = r
	return nil
}

func (f *fakeRegs) ListByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	var out []model.Registration
	for _, r := range f.registrations {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

func (f *fakeRegs) FindWaitlistEntry(_ context.Context, eventID, userID string) (*model.WaitlistEntry, error) {
	for _, w := range f.waitlist {
		if w.EventID == eventID && w.UserID == userID {
			w := w
			return &w, nil
		}
	}
	return nil, nil
}

func (f *fakeRegs) MaxWaitlistPosition(_ context.Context, eventID string) (int, error) {
	max := 0
	for _, w := range f.waitlist {
		if w.EventID == eventID && w.Position > max {
			max = w.Position
		}
	}
	return max, nil
}

func (f *fakeRegs) CreateWaitlistEntry(_ context.Context, w model.WaitlistEntry) error {
	f.waitlist = append(f.waitlist, w)
	return nil
}

func (f *fakeRegs) ListWaitlist(_ context.Context, eventID string) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for _, w := range f.waitlist {
		if w.EventID == eventID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeRegs) FindCheckIn(_ context.Context, eventID, userID string) (*model.CheckIn, error) {
	for _, c := range f.checkins {
		if c.EventID == eventID && c.UserID == userID {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeRegs) CreateCheckIn(_ context.Context, c model.CheckIn) error {
	f.checkins = append(f.checkins, c)
	return nil
}

type fakeSink struct {
	notifications []model.Notification
	audits        []model.AuditLog
}

func (f *fakeSink) CreateNotification(_ context.Context, n model.Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeSink) CreateAuditLog(_ context.Context, a model.AuditLog) error {
	f.audits = append(f.audits, a)
	return nil
}

func (f *fakeSink) recipients() []string {
	var out []string
	for _, n := range f.notifications {
		out = append(out, n.UserID)
	}
	return out
}

type fakeUsers struct {
	users       map[string]model.User
	emailTokens map[string]repository.EmailVerificationToken
	resetTokens map[string]repository.PasswordResetToken
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		users:       map[string]model.User{},
		emailTokens: map[string]repository.EmailVerificationToken{},
		resetTokens: map[string]repository.PasswordResetToken{},
	}
}

func (f *fakeUsers) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeUsers) Create(_ context.Context, u model.User) error {
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return repository.ErrEmailTaken
		}
		if existing.Username == u.Username {
			return repository.ErrUsernameTaken
		}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (model.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUsers) FindByLogin(_ context.Context, usernameOrEmail string) (model.User, error) {
	for _, u := range f.users {
		if u.Username == usernameOrEmail || u.Email == usernameOrEmail {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUsers) List(_ context.Context) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeUsers) UpdateRole(_ context.Context, id string, role model.Role) error {
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	f.users[id] = u
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	f.users[id] = u
	return nil
}

func (f *fakeUsers) CreateEmailToken(_ context.Context, userID, token string, now time.Time) error {
	f.emailTokens[token] = repository.EmailVerificationToken{
		ID: "evt-" + token, UserID: userID, Token: token, CreatedAt: now,
	}
	return nil
}

func (f *fakeUsers) FindEmailToken(_ context.Context, token string) (repository.EmailVerificationToken, error) {
	rec, ok := f.emailTokens[token]
	if !ok {
		return repository.EmailVerificationToken{}, repository.ErrNotFound
	}
	return rec, nil
}

func (f *fakeUsers) FindPendingEmailToken(_ context.Context, userID string) (repository.EmailVerificationToken, error) {
	for _, rec := range f.emailTokens {
		if rec.UserID == userID && rec.VerifiedAt == nil {
			return rec, nil
		}
	}
	return repository.EmailVerificationToken{}, repository.ErrNotFound
}

func (f *fakeUsers) MarkEmailVerified(_ context.Context, tokenID string, when time.Time) error {
	for token, rec := range f.emailTokens {
		if rec.ID == tokenID {
			rec.VerifiedAt = &when
			f.emailTokens[token] = rec
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeUsers) CreateResetToken(_ context.Context, userID, token string, now time.Time) error {
	f.resetTokens[token] = repository.PasswordResetToken{
		ID: "prt-" + token, UserID: userID, Token: token, CreatedAt: now,
	}
	return nil
}

func (f *fakeUsers) FindResetToken(_ context.Context, token string) (repository.PasswordResetToken, error) {
	rec, ok := f.resetTokens[token]
	if !ok {
		return repository.PasswordResetToken{}, repository.ErrNotFound
	}
	return rec, nil
}

func (f *fakeUsers) MarkResetUsed(_ context.Context, tokenID string, when time.Time) error {
	for token, rec := range f.resetTokens {
		if rec.ID == tokenID {
			rec.UsedAt = &when
			f.resetTokens[token] = rec
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeNotifications struct {
	items []model.Notification
}

func (f *fakeNotifications) ListForUser(_ context.Context, userID string) ([]model.Notification, error) {
	var out []model.Notification
	for _, n := range f.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotifications) CountUnread(_ context.Context, userID string) (int, error) {
	n := 0
	for _, item := range f.items {
		if item.UserID == userID && item.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeNotifications) GetByID(_ context.Context, id string) (model.Notification, error) {
	for _, n := range f.items {
		if n.ID == id {
			return n, nil
		}
	}
	return model.Notification{}, repository.ErrNotFound
}

func (f *fakeNotifications) MarkRead(_ context.Context, id string, when time.Time) error {
	for i, n := range f.items {
		if n.ID == id {
			f.items[i].ReadAt = &when
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeReports struct {
	rows   []model.RegistrationReportRow
	events map[string][]model.Event // by user
}

func (f *fakeReports) RegistrationRows(_ context.Context) ([]model.RegistrationReportRow, error) {
	return f.rows, nil
}

func (f *fakeReports) RegisteredEvents(_ context.Context, userID string) ([]model.Event, error) {
	return f.events[userID], nil
}
