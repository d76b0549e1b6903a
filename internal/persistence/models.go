package persistence

import "time"

// User is an account row. Role is stored as its text form.
type User struct {
	ID                string
	Email             string
	FullName          string
	PasswordHash      string
	Role              string
	Company           string
	Phone             string
	IsActive          bool
	EmailConfirmedAt  *time.Time
	ConfirmationToken string
	LastLoginAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Session represents an authentication session persisted for a user.
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

// PermissionOverride is a per-user grant or denial.
type PermissionOverride struct {
	UserID     string
	Permission string
	Granted    bool
	GrantedBy  string
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CustomField is a registration question attached to an event.
type CustomField struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// Event is an event row. Registered and CheckedIn are derived counts filled
// by read queries and ignored on write.
type Event struct {
	ID           string
	Title        string
	Description  string
	Category     string
	Status       string
	StartAt      time.Time
	EndAt        time.Time
	IsOnline     bool
	Venue        string
	MeetingLink  string
	Capacity     int
	PriceMinor   int64
	Currency     string
	Tags         []string
	CustomFields []CustomField
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Registered int
	CheckedIn  int
}

// Attendee is a registration row.
type Attendee struct {
	ID            string
	EventID       string
	UserID        string
	Name          string
	Email         string
	Company       string
	TicketType    string
	PaymentStatus string
	AmountMinor   int64
	QRCode        string
	CheckInStatus string
	CheckInTime   *time.Time
	CheckedInBy   string
	Answers       map[string]string
	RegisteredAt  time.Time
	UpdatedAt     time.Time
}

// EventDraft is the persisted state of the event creation wizard.
type EventDraft struct {
	ID        string
	OwnerID   string
	Step      int
	Payload   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Preference is a keyed JSON blob owned by a user.
type Preference struct {
	OwnerID   string
	Key       string
	Value     []byte
	UpdatedAt time.Time
}
