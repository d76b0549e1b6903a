package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/application"
	"github.com/example/eventflow/internal/persistence"
)

var (
	userCounter     uint64
	eventCounter    uint64
	attendeeCounter uint64
	sessionCounter  uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic user record that can be materialised
// for application or persistence tests.
type UserFixture struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         access.Role
	Company      string
	IsActive     bool
	Confirmed    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns an active, confirmed attendee with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		ID:           id,
		Email:        fmt.Sprintf("%s@example.com", id),
		FullName:     fmt.Sprintf("User %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		Role:         access.RoleAttendee,
		IsActive:     true,
		Confirmed:    true,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserFullName overrides the generated name.
func WithUserFullName(name string) UserOption {
	return func(f *UserFixture) {
		f.FullName = name
	}
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) {
		f.PasswordHash = hash
	}
}

// WithUserRole sets the role on the generated fixture.
func WithUserRole(role access.Role) UserOption {
	return func(f *UserFixture) {
		f.Role = role
	}
}

// WithUserInactive marks the account as deactivated.
func WithUserInactive() UserOption {
	return func(f *UserFixture) {
		f.IsActive = false
	}
}

// WithUserUnconfirmed leaves the e-mail address unconfirmed.
func WithUserUnconfirmed() UserOption {
	return func(f *UserFixture) {
		f.Confirmed = false
	}
}

// WithUserTimestamps sets both created and updated timestamps on the fixture.
func WithUserTimestamps(created, updated time.Time) UserOption {
	return func(f *UserFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Principal returns a principal holding the role's default permissions.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{
		UserID:      f.ID,
		Role:        f.Role,
		Permissions: access.NewSet(access.DefaultRolePermissions[f.Role]...),
	}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	user := persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		FullName:     f.FullName,
		PasswordHash: f.PasswordHash,
		Role:         f.Role.String(),
		Company:      f.Company,
		IsActive:     f.IsActive,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
	if f.Confirmed {
		confirmed := f.CreatedAt
		user.EmailConfirmedAt = &confirmed
	} else {
		user.ConfirmationToken = "confirm-" + f.ID
	}
	return user
}

// ---------------------------- Event fixtures -----------------------------

// EventFixture represents a deterministic event record.
type EventFixture struct {
	ID         string
	Title      string
	Category   string
	Status     string
	StartAt    time.Time
	EndAt      time.Time
	Venue      string
	Capacity   int
	PriceMinor int64
	Tags       []string
	CreatedBy  string
	CreatedAt  time.Time
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a published in-person event created by createdBy.
func NewEventFixture(createdBy string, opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	start := referenceTime.Add(time.Duration(idx) * 24 * time.Hour)
	fixture := EventFixture{
		ID:        fmt.Sprintf("event-%03d", idx),
		Title:     fmt.Sprintf("Event %03d", idx),
		Category:  "conference",
		Status:    "published",
		StartAt:   start,
		EndAt:     start.Add(4 * time.Hour),
		Venue:     "Hall A",
		Capacity:  100,
		CreatedBy: createdBy,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventStatus sets the publication status.
func WithEventStatus(status string) EventOption {
	return func(f *EventFixture) {
		f.Status = status
	}
}

// WithEventCapacity overrides the seat count.
func WithEventCapacity(capacity int) EventOption {
	return func(f *EventFixture) {
		f.Capacity = capacity
	}
}

// WithEventStart moves the event, keeping its duration.
func WithEventStart(start time.Time) EventOption {
	return func(f *EventFixture) {
		f.EndAt = start.Add(f.EndAt.Sub(f.StartAt))
		f.StartAt = start
	}
}

// WithEventTags sets the tag list.
func WithEventTags(tags ...string) EventOption {
	return func(f *EventFixture) {
		f.Tags = append([]string(nil), tags...)
	}
}

// Persistence returns the fixture as a persistence.Event value.
func (f EventFixture) Persistence() persistence.Event {
	return persistence.Event{
		ID:         f.ID,
		Title:      f.Title,
		Category:   f.Category,
		Status:     f.Status,
		StartAt:    f.StartAt,
		EndAt:      f.EndAt,
		Venue:      f.Venue,
		Capacity:   f.Capacity,
		PriceMinor: f.PriceMinor,
		Currency:   "USD",
		Tags:       append([]string(nil), f.Tags...),
		CustomFields: []persistence.CustomField{
			{ID: "size", Label: "T-shirt size", Type: "select", Options: []string{"S", "M", "L"}},
		},
		CreatedBy: f.CreatedBy,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.CreatedAt,
	}
}

// --------------------------- Attendee fixtures ---------------------------

// AttendeeFixture represents a deterministic registration.
type AttendeeFixture struct {
	ID            string
	EventID       string
	Name          string
	Email         string
	PaymentStatus string
	CheckInStatus string
	QRCode        string
	RegisteredAt  time.Time
}

// AttendeeOption configures the generated attendee fixture.
type AttendeeOption func(*AttendeeFixture)

// NewAttendeeFixture returns a paid, pending registration for eventID.
func NewAttendeeFixture(eventID string, opts ...AttendeeOption) AttendeeFixture {
	idx := atomic.AddUint64(&attendeeCounter, 1)
	id := fmt.Sprintf("attendee-%03d", idx)
	fixture := AttendeeFixture{
		ID:            id,
		EventID:       eventID,
		Name:          fmt.Sprintf("Guest %03d", idx),
		Email:         fmt.Sprintf("%s@example.com", id),
		PaymentStatus: "paid",
		CheckInStatus: "pending",
		QRCode:        "qr-" + id,
		RegisteredAt:  referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAttendeeID overrides the generated ID and the ticket code derived from it.
func WithAttendeeID(id string) AttendeeOption {
	return func(f *AttendeeFixture) {
		f.ID = id
		f.QRCode = "qr-" + id
	}
}

// WithAttendeeEmail overrides the e-mail address.
func WithAttendeeEmail(email string) AttendeeOption {
	return func(f *AttendeeFixture) {
		f.Email = email
	}
}

// WithAttendeeCheckInStatus sets the check-in state.
func WithAttendeeCheckInStatus(status string) AttendeeOption {
	return func(f *AttendeeFixture) {
		f.CheckInStatus = status
	}
}

// Persistence returns the fixture as a persistence.Attendee value.
func (f AttendeeFixture) Persistence() persistence.Attendee {
	return persistence.Attendee{
		ID:            f.ID,
		EventID:       f.EventID,
		Name:          f.Name,
		Email:         f.Email,
		TicketType:    "general",
		PaymentStatus: f.PaymentStatus,
		QRCode:        f.QRCode,
		CheckInStatus: f.CheckInStatus,
		Answers:       map[string]string{"size": "M"},
		RegisteredAt:  f.RegisteredAt,
		UpdatedAt:     f.RegisteredAt,
	}
}

// --------------------------- Session fixtures ----------------------------

// SessionOption configures the generated session.
type SessionOption func(*persistence.Session)

// WithSessionToken overrides the generated token.
func WithSessionToken(token string) SessionOption {
	return func(s *persistence.Session) {
		s.Token = token
	}
}

// WithSessionExpiry sets the expiry time.
func WithSessionExpiry(expires time.Time) SessionOption {
	return func(s *persistence.Session) {
		s.ExpiresAt = expires
	}
}

// NewSession returns a session for userID expiring one hour after ReferenceTime.
func NewSession(userID string, opts ...SessionOption) persistence.Session {
	idx := atomic.AddUint64(&sessionCounter, 1)
	session := persistence.Session{
		ID:          fmt.Sprintf("session-%03d", idx),
		UserID:      userID,
		Token:       fmt.Sprintf("token-%03d", idx),
		Fingerprint: "test-agent",
		ExpiresAt:   referenceTime.Add(time.Hour),
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&session)
	}
	return session
}
