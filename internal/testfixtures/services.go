package testfixtures

import (
	"log/slog"
	"strings"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/application"
	"github.com/example/eventflow/internal/autosave"
	"github.com/example/eventflow/internal/live"
	"github.com/example/eventflow/internal/persistence/sqlite"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Tokens      *IDGenerator
	Hub         *live.Hub
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Tokens:      NewIDGenerator("token"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Tokens == nil {
		factory.Tokens = NewIDGenerator("token")
	}
	if factory.Hub == nil {
		factory.Hub = live.NewHub(8, factory.Logger)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithHub overrides the live hub the services publish to.
func WithHub(hub *live.Hub) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Hub = hub
	}
}

// Services is the full service graph wired on one store.
type Services struct {
	Permissions *application.PermissionService
	Auth        *application.AuthService
	Users       *application.UserService
	Events      *application.EventService
	Attendees   *application.AttendeeService
	CheckIns    *application.CheckInService
	Drafts      *application.DraftService
	Codes       *application.QRIndex
}

// PlainPasswordHash is a fast stand-in for argon2id in tests.
func PlainPasswordHash(password string) (string, error) {
	return "plain:" + password, nil
}

// VerifyPlainPassword checks hashes made by PlainPasswordHash.
func VerifyPlainPassword(hashedPassword, password string) error {
	if !strings.HasPrefix(hashedPassword, "plain:") || strings.TrimPrefix(hashedPassword, "plain:") != password {
		return application.ErrInvalidCredentials
	}
	return nil
}

// NewServices wires every service on store the way the server does, with the
// factory's clock, generators and hub.
func (f *ServiceFactory) NewServices(store *sqlite.Store) (Services, error) {
	now := f.Clock.NowFunc()
	ids := f.IDGenerator.NextFunc()
	tokens := f.Tokens.NextFunc()

	codes, err := application.NewQRIndex(store.Attendees, 64)
	if err != nil {
		return Services{}, err
	}

	permissions := application.NewPermissionServiceWithLogger(store.Users, store.Permissions, access.PolicyUnion, now, f.Logger)
	events := application.NewEventServiceWithLogger(store.Events, store.Attendees, f.Hub, application.DefaultEventRules(), ids, now, f.Logger)
	return Services{
		Permissions: permissions,
		Auth:        application.NewAuthServiceWithLogger(store.Users, store.Sessions, permissions, PlainPasswordHash, VerifyPlainPassword, tokens, now, time.Hour, f.Logger),
		Users:       application.NewUserServiceWithLogger(store.Users, now, f.Logger),
		Events:      events,
		Attendees:   application.NewAttendeeServiceWithLogger(store.Events, store.Attendees, codes, f.Hub, ids, tokens, now, f.Logger),
		CheckIns:    application.NewCheckInServiceWithLogger(store.Events, store.Attendees, codes, f.Hub, 10, now, f.Logger),
		Drafts:      application.NewDraftServiceWithLogger(autosave.NewBuffer(), store.Drafts, events, now, f.Logger),
		Codes:       codes,
	}, nil
}
