package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for users. Users are never deleted.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByConfirmationToken(ctx context.Context, token string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// PermissionRepository stores the role table and per-user overrides.
type PermissionRepository interface {
	ListRolePermissions(ctx context.Context, role string) ([]string, error)
	ListOverrides(ctx context.Context, userID string) ([]PermissionOverride, error)
	UpsertOverride(ctx context.Context, override PermissionOverride) error
	DeleteOverride(ctx context.Context, userID, permission string) error
}

// EventFilter narrows event queries at the storage level.
type EventFilter struct {
	Statuses  []string
	CreatedBy string
}

// EventRepository stores events.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// AttendeeRepository stores registrations and their check-in state.
type AttendeeRepository interface {
	// RegisterAttendee inserts the row only while the event has free capacity.
	RegisterAttendee(ctx context.Context, attendee Attendee) error
	GetAttendee(ctx context.Context, id string) (Attendee, error)
	GetAttendeeByQRCode(ctx context.Context, code string) (Attendee, error)
	ListAttendees(ctx context.Context, eventID string) ([]Attendee, error)
	// UpdatePaymentStatus touches only the payment column.
	UpdatePaymentStatus(ctx context.Context, id, status string, at time.Time) error
	// MarkCheckedIn moves a pending attendee to checked-in. It returns
	// ErrStateConflict when the attendee was no longer pending.
	MarkCheckedIn(ctx context.Context, id string, at time.Time, by string) error
	// MarkNoShow moves one pending attendee to no-show. It returns
	// ErrStateConflict when the attendee was no longer pending.
	MarkNoShow(ctx context.Context, id string, at time.Time) error
	// MarkNoShows moves every pending attendee of the event to no-show.
	MarkNoShows(ctx context.Context, eventID string, at time.Time) (int, error)
}

// DraftRepository stores wizard drafts.
type DraftRepository interface {
	SaveDraft(ctx context.Context, draft EventDraft) error
	GetDraft(ctx context.Context, id string) (EventDraft, error)
	DeleteDraft(ctx context.Context, id string) error
}

// PreferenceRepository stores per-owner preference blobs.
type PreferenceRepository interface {
	GetPreference(ctx context.Context, ownerID, key string) (Preference, error)
	PutPreference(ctx context.Context, pref Preference) error
	DeletePreference(ctx context.Context, ownerID, key string) error
}
