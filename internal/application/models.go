package application

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/checkin"
	"github.com/example/eventflow/internal/listview"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID      string
	Role        access.Role
	Permissions access.Set
}

// Can reports whether the principal holds perm in its effective set.
func (p Principal) Can(perm access.Permission) bool {
	return p.UserID != "" && p.Permissions.Has(perm)
}

// require returns ErrUnauthorized unless the principal holds every permission.
func (p Principal) require(perms ...access.Permission) error {
	if p.UserID == "" {
		return ErrUnauthorized
	}
	for _, perm := range perms {
		if !p.Permissions.Has(perm) {
			return fmt.Errorf("%w: missing %s", ErrUnauthorized, perm)
		}
	}
	return nil
}

// User represents an account exposed by the application services.
type User struct {
	ID               string
	Email            string
	FullName         string
	Role             access.Role
	Company          string
	Phone            string
	IsActive         bool
	EmailConfirmedAt *time.Time
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Session represents an authenticated session issued to a user.
type Session struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// SignInParams captures the data required to authenticate a user.
type SignInParams struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	Fingerprint string `json:"-"`
}

// SignInResult captures the outcome of a successful sign-in.
type SignInResult struct {
	User        User
	Session     Session
	Permissions access.Set
}

// SignUpParams captures the data required to create an attendee account.
type SignUpParams struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	FullName string `json:"full_name" validate:"required,notblank,max=120"`
	Company  string `json:"company" validate:"max=120"`
	Phone    string `json:"phone" validate:"max=40"`
}

// SignUpResult carries the new account and the token that confirms its e-mail.
type SignUpResult struct {
	User              User
	ConfirmationToken string
}

// RefreshSessionParams captures the data required to refresh an existing session.
type RefreshSessionParams struct {
	Token       string
	Fingerprint string
}

// RefreshSessionResult captures the outcome of rotating a session token.
type RefreshSessionResult struct {
	Session Session
}

// ProfileInput holds the self-service profile fields. Nil fields are left unchanged.
type ProfileInput struct {
	FullName *string `json:"full_name" validate:"omitempty,max=120"`
	Company  *string `json:"company" validate:"omitempty,max=120"`
	Phone    *string `json:"phone" validate:"omitempty,max=40"`
}

// ListQuery carries the filter and sort state of a list screen.
type ListQuery struct {
	Filters listview.Filters
	Sort    listview.SortState
}

// PermissionGrant is the body of a grant request.
type PermissionGrant struct {
	Permission string     `json:"permission" validate:"required,permission"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

// PermissionOverride is a per-user grant or denial as shown to administrators.
type PermissionOverride struct {
	UserID     string
	Permission access.Permission
	Granted    bool
	GrantedBy  string
	ExpiresAt  *time.Time
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserPermissions is the effective set of a user together with its overrides.
type UserPermissions struct {
	UserID    string
	Role      access.Role
	Effective access.Set
	Overrides []PermissionOverride
	Policy    access.RevocationPolicy
}

// EventStatus is the publication state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
)

// ParseEventStatus validates an event status string.
func ParseEventStatus(value string) (EventStatus, error) {
	switch s := EventStatus(strings.ToLower(strings.TrimSpace(value))); s {
	case EventDraft, EventPublished, EventCancelled:
		return s, nil
	}
	return "", fmt.Errorf("unknown event status %q", value)
}

// Custom field types offered by the event wizard.
const (
	FieldTypeText     = "text"
	FieldTypeNumber   = "number"
	FieldTypeSelect   = "select"
	FieldTypeCheckbox = "checkbox"
)

// CustomField is a registration question attached to an event.
type CustomField struct {
	ID       string
	Label    string
	Type     string
	Required bool
	Options  []string
}

// CustomFieldInput is a custom field as submitted by the wizard. An empty ID
// asks the service to assign one.
type CustomFieldInput struct {
	ID       string   `json:"id" validate:"max=64"`
	Label    string   `json:"label" validate:"required,notblank,max=120"`
	Type     string   `json:"type" validate:"required,oneof=text number select checkbox"`
	Required bool     `json:"required"`
	Options  []string `json:"options" validate:"max=50,dive,notblank,max=80"`
}

// Event is an event as exposed by the application services.
type Event struct {
	ID           string
	Title        string
	Description  string
	Category     string
	Status       EventStatus
	StartAt      time.Time
	EndAt        time.Time
	IsOnline     bool
	Venue        string
	MeetingLink  string
	Capacity     int
	Registered   int
	CheckedIn    int
	PriceMinor   int64
	Currency     string
	Tags         []string
	CustomFields []CustomField
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EventInput captures the caller provided event fields.
type EventInput struct {
	Title        string             `json:"title" validate:"required,notblank,max=200"`
	Description  string             `json:"description" validate:"max=5000"`
	Category     string             `json:"category" validate:"required,notblank,max=60"`
	StartAt      time.Time          `json:"start_at" validate:"required"`
	EndAt        time.Time          `json:"end_at" validate:"required"`
	IsOnline     bool               `json:"is_online"`
	Venue        string             `json:"venue" validate:"max=200"`
	MeetingLink  string             `json:"meeting_link" validate:"omitempty,url"`
	Capacity     int                `json:"capacity" validate:"gt=0,lte=1000000"`
	PriceMinor   int64              `json:"price_minor" validate:"gte=0"`
	Currency     string             `json:"currency" validate:"omitempty,len=3,alpha"`
	Tags         []string           `json:"tags" validate:"max=20,dive,notblank,max=40"`
	CustomFields []CustomFieldInput `json:"custom_fields" validate:"max=30,dive"`
}

// EventStats is the derived availability summary of one event.
type EventStats struct {
	EventID         string
	Capacity        int
	Registered      int
	CheckedIn       int
	AvailableSpots  int
	FillPercent     float64
	LowAvailability bool
	SoldOut         bool
	DaysUntilStart  int
	ClosingSoon     bool
}

// Overview aggregates the dashboard figures across all visible events.
type Overview struct {
	TotalEvents    int
	EventsByStatus map[EventStatus]int
	UpcomingEvents int
	Registrations  int
	CheckIns       int
	CheckInRate    float64
	Revenue        map[string]int64
	LowAvailable   []EventStats
}

// PaymentStatus is the payment state of a registration.
type PaymentStatus string

const (
	PaymentPaid     PaymentStatus = "paid"
	PaymentPending  PaymentStatus = "pending"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// ParsePaymentStatus validates a payment status string.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	switch s := PaymentStatus(strings.ToLower(strings.TrimSpace(value))); s {
	case PaymentPaid, PaymentPending, PaymentFailed, PaymentRefunded:
		return s, nil
	}
	return "", fmt.Errorf("unknown payment status %q", value)
}

// Attendee is a registration as exposed by the application services.
type Attendee struct {
	ID            string
	EventID       string
	UserID        string
	Name          string
	Email         string
	Company       string
	TicketType    string
	PaymentStatus PaymentStatus
	AmountMinor   int64
	QRCode        string
	CheckInStatus checkin.Status
	CheckInTime   *time.Time
	CheckedInBy   string
	Answers       map[string]string
	RegisteredAt  time.Time
	UpdatedAt     time.Time
}

// RegistrationInput captures the registration form.
type RegistrationInput struct {
	Name       string            `json:"name" validate:"required,notblank,max=120"`
	Email      string            `json:"email" validate:"required,email,max=254"`
	Company    string            `json:"company" validate:"max=120"`
	TicketType string            `json:"ticket_type" validate:"max=40"`
	Answers    map[string]string `json:"answers" validate:"max=30,dive,max=1000"`
}

// Bulk actions staff can apply to a selection of attendees.
const (
	BulkCheckIn          = "check_in"
	BulkMarkNoShow       = "mark_no_show"
	BulkSetPaymentStatus = "set_payment_status"
)

// BulkUpdateInput names the attendees to change and what to do with them.
// When SelectAll is set, the selection is the current filtered view described
// by Query and IDs is ignored.
type BulkUpdateInput struct {
	Action        string    `json:"action" validate:"required,oneof=check_in mark_no_show set_payment_status"`
	IDs           []string  `json:"ids" validate:"max=5000"`
	SelectAll     bool      `json:"select_all"`
	PaymentStatus string    `json:"payment_status" validate:"omitempty,payment_status"`
	Query         ListQuery `json:"-"`
}

// BulkUpdateResult reports which attendees changed.
type BulkUpdateResult struct {
	Selected int
	Updated  []string
	Skipped  []string
}

// ScanResult is a check-in outcome together with the event's counters after it.
type ScanResult struct {
	Outcome  checkin.Outcome
	Counters checkin.Counters
}

// Draft is an event wizard draft.
type Draft struct {
	ID        string
	OwnerID   string
	Step      int
	Payload   json.RawMessage
	UpdatedAt time.Time
	// Persisted is false while the latest content is only buffered.
	Persisted bool
}

// DraftInput is the wizard content sent on every change.
type DraftInput struct {
	Step    int             `json:"step" validate:"gte=0,lte=10"`
	Payload json.RawMessage `json:"payload"`
}
