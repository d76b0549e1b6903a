package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/live"
	"github.com/example/eventflow/internal/persistence"
)

// memoryStore implements every persistence repository in memory for tests.
// Errors can be injected per method name through fail.
type memoryStore struct {
	mu sync.Mutex

	users     map[string]persistence.User
	sessions  map[string]persistence.Session
	rolePerms map[string][]string
	overrides map[string]map[string]persistence.PermissionOverride
	events    map[string]persistence.Event
	attendees map[string]persistence.Attendee
	drafts    map[string]persistence.EventDraft
	prefs     map[string]persistence.Preference

	fail map[string]error

	// beforeCheckIn runs ahead of MarkCheckedIn without the lock held.
	beforeCheckIn func(id string)
	// afterListAttendees runs once ListAttendees has released the lock.
	afterListAttendees func(eventID string)

	deleteCalls []time.Time
	draftSaves  int
}

func newMemoryStore() *memoryStore {
	roles := make(map[string][]string)
	for role, perms := range access.DefaultRolePermissions {
		names := make([]string, len(perms))
		for i, p := range perms {
			names[i] = string(p)
		}
		roles[role.String()] = names
	}
	return &memoryStore{
		users:     make(map[string]persistence.User),
		sessions:  make(map[string]persistence.Session),
		rolePerms: roles,
		overrides: make(map[string]map[string]persistence.PermissionOverride),
		events:    make(map[string]persistence.Event),
		attendees: make(map[string]persistence.Attendee),
		drafts:    make(map[string]persistence.EventDraft),
		prefs:     make(map[string]persistence.Preference),
		fail:      make(map[string]error),
	}
}

func (m *memoryStore) failing(method string, err error) *memoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[method] = err
	return m
}

func (m *memoryStore) err(method string) error {
	return m.fail[method]
}

// users

func (m *memoryStore) CreateUser(ctx context.Context, user persistence.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("CreateUser"); err != nil {
		return err
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return persistence.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *memoryStore) UpdateUser(ctx context.Context, user persistence.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("UpdateUser"); err != nil {
		return err
	}
	if _, ok := m.users[user.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *memoryStore) GetUser(ctx context.Context, id string) (persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("GetUser"); err != nil {
		return persistence.User{}, err
	}
	u, ok := m.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return u, nil
}

func (m *memoryStore) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("GetUserByEmail"); err != nil {
		return persistence.User{}, err
	}
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

func (m *memoryStore) GetUserByConfirmationToken(ctx context.Context, token string) (persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ConfirmationToken != "" && u.ConfirmationToken == token {
			return u, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

func (m *memoryStore) ListUsers(ctx context.Context) ([]persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("ListUsers"); err != nil {
		return nil, err
	}
	out := make([]persistence.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return persistence.ErrNotFound
	}
	u.LastLoginAt = &at
	m.users[id] = u
	return nil
}

// sessions, keyed by token

func (m *memoryStore) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("CreateSession"); err != nil {
		return persistence.Session{}, err
	}
	m.sessions[session.Token] = session
	return session, nil
}

func (m *memoryStore) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("GetSession"); err != nil {
		return persistence.Session{}, err
	}
	s, ok := m.sessions[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return s, nil
}

func (m *memoryStore) UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		if s.ID == session.ID {
			delete(m.sessions, token)
			m.sessions[session.Token] = session
			return session, nil
		}
	}
	return persistence.Session{}, persistence.ErrNotFound
}

func (m *memoryStore) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	s.RevokedAt = &revokedAt
	m.sessions[token] = s
	return s, nil
}

func (m *memoryStore) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("DeleteExpiredSessions"); err != nil {
		return err
	}
	m.deleteCalls = append(m.deleteCalls, reference)
	for token, s := range m.sessions {
		if !s.ExpiresAt.After(reference) {
			delete(m.sessions, token)
		}
	}
	return nil
}

// permissions

func (m *memoryStore) ListRolePermissions(ctx context.Context, role string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("ListRolePermissions"); err != nil {
		return nil, err
	}
	return append([]string(nil), m.rolePerms[role]...), nil
}

func (m *memoryStore) ListOverrides(ctx context.Context, userID string) ([]persistence.PermissionOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("ListOverrides"); err != nil {
		return nil, err
	}
	var out []persistence.PermissionOverride
	for _, o := range m.overrides[userID] {
		out = append(out, o)
	}
	return out, nil
}

func (m *memoryStore) UpsertOverride(ctx context.Context, override persistence.PermissionOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("UpsertOverride"); err != nil {
		return err
	}
	if m.overrides[override.UserID] == nil {
		m.overrides[override.UserID] = make(map[string]persistence.PermissionOverride)
	}
	m.overrides[override.UserID][override.Permission] = override
	return nil
}

func (m *memoryStore) DeleteOverride(ctx context.Context, userID, permission string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.overrides[userID][permission]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.overrides[userID], permission)
	return nil
}

// events

func (m *memoryStore) CreateEvent(ctx context.Context, event persistence.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("CreateEvent"); err != nil {
		return err
	}
	if _, ok := m.events[event.ID]; ok {
		return persistence.ErrDuplicate
	}
	event.Registered, event.CheckedIn = 0, 0
	m.events[event.ID] = event
	return nil
}

func (m *memoryStore) UpdateEvent(ctx context.Context, event persistence.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.events[event.ID] = event
	return nil
}

func (m *memoryStore) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("GetEvent"); err != nil {
		return persistence.Event{}, err
	}
	e, ok := m.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return m.withCountsLocked(e), nil
}

func (m *memoryStore) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("ListEvents"); err != nil {
		return nil, err
	}
	var out []persistence.Event
	for _, e := range m.events {
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, e.Status) {
			continue
		}
		if filter.CreatedBy != "" && e.CreatedBy != filter.CreatedBy {
			continue
		}
		out = append(out, m.withCountsLocked(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) DeleteEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.events, id)
	for aid, a := range m.attendees {
		if a.EventID == id {
			delete(m.attendees, aid)
		}
	}
	return nil
}

func (m *memoryStore) withCountsLocked(e persistence.Event) persistence.Event {
	e.Registered, e.CheckedIn = 0, 0
	for _, a := range m.attendees {
		if a.EventID != e.ID {
			continue
		}
		e.Registered++
		if a.CheckInStatus == "checked-in" {
			e.CheckedIn++
		}
	}
	return e
}

// attendees

func (m *memoryStore) RegisterAttendee(ctx context.Context, attendee persistence.Attendee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("RegisterAttendee"); err != nil {
		return err
	}
	event, ok := m.events[attendee.EventID]
	if !ok {
		return persistence.ErrForeignKeyViolation
	}
	taken := 0
	for _, a := range m.attendees {
		if a.EventID != attendee.EventID {
			continue
		}
		if a.Email == attendee.Email {
			return persistence.ErrDuplicate
		}
		taken++
	}
	if taken >= event.Capacity {
		return persistence.ErrCapacityReached
	}
	m.attendees[attendee.ID] = attendee
	return nil
}

func (m *memoryStore) GetAttendee(ctx context.Context, id string) (persistence.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendees[id]
	if !ok {
		return persistence.Attendee{}, persistence.ErrNotFound
	}
	return a, nil
}

func (m *memoryStore) GetAttendeeByQRCode(ctx context.Context, code string) (persistence.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attendees {
		if a.QRCode == code {
			return a, nil
		}
	}
	return persistence.Attendee{}, persistence.ErrNotFound
}

func (m *memoryStore) ListAttendees(ctx context.Context, eventID string) ([]persistence.Attendee, error) {
	out, err := m.listAttendees(eventID)
	if err == nil && m.afterListAttendees != nil {
		m.afterListAttendees(eventID)
	}
	return out, err
}

func (m *memoryStore) listAttendees(eventID string) ([]persistence.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("ListAttendees"); err != nil {
		return nil, err
	}
	var out []persistence.Attendee
	for _, a := range m.attendees {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) UpdatePaymentStatus(ctx context.Context, id, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendees[id]
	if !ok {
		return persistence.ErrNotFound
	}
	a.PaymentStatus = status
	a.UpdatedAt = at
	m.attendees[id] = a
	return nil
}

func (m *memoryStore) MarkNoShow(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendees[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if a.CheckInStatus != "pending" {
		return persistence.ErrStateConflict
	}
	a.CheckInStatus = "no-show"
	a.UpdatedAt = at
	m.attendees[id] = a
	return nil
}

func (m *memoryStore) MarkCheckedIn(ctx context.Context, id string, at time.Time, by string) error {
	if hook := m.beforeCheckIn; hook != nil {
		hook(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendees[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if a.CheckInStatus != "pending" {
		return persistence.ErrStateConflict
	}
	a.CheckInStatus = "checked-in"
	a.CheckInTime = &at
	a.CheckedInBy = by
	m.attendees[id] = a
	return nil
}

func (m *memoryStore) MarkNoShows(ctx context.Context, eventID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, a := range m.attendees {
		if a.EventID == eventID && a.CheckInStatus == "pending" {
			a.CheckInStatus = "no-show"
			a.UpdatedAt = at
			m.attendees[id] = a
			n++
		}
	}
	return n, nil
}

// drafts

func (m *memoryStore) SaveDraft(ctx context.Context, draft persistence.EventDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("SaveDraft"); err != nil {
		return err
	}
	m.draftSaves++
	m.drafts[draft.ID] = draft
	return nil
}

func (m *memoryStore) GetDraft(ctx context.Context, id string) (persistence.EventDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return persistence.EventDraft{}, persistence.ErrNotFound
	}
	return d, nil
}

func (m *memoryStore) DeleteDraft(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.drafts, id)
	return nil
}

// preferences

func (m *memoryStore) GetPreference(ctx context.Context, ownerID, key string) (persistence.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("GetPreference"); err != nil {
		return persistence.Preference{}, err
	}
	p, ok := m.prefs[ownerID+"/"+key]
	if !ok {
		return persistence.Preference{}, persistence.ErrNotFound
	}
	return p, nil
}

func (m *memoryStore) PutPreference(ctx context.Context, pref persistence.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("PutPreference"); err != nil {
		return err
	}
	m.prefs[pref.OwnerID+"/"+pref.Key] = pref
	return nil
}

func (m *memoryStore) DeletePreference(ctx context.Context, ownerID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prefs[ownerID+"/"+key]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.prefs, ownerID+"/"+key)
	return nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// publisherStub records published messages.
type publisherStub struct {
	mu       sync.Mutex
	messages []live.Message
}

func (p *publisherStub) Publish(msg live.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return 1
}

func (p *publisherStub) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.messages))
	for i, m := range p.messages {
		out[i] = m.Type
	}
	return out
}

// sequence returns a generator yielding prefix-1, prefix-2, ...
func sequence(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + itoa(n)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func principalFor(id string, role access.Role) Principal {
	return Principal{UserID: id, Role: role, Permissions: access.NewSet(access.DefaultRolePermissions[role]...)}
}

// plainHasher keeps tests fast; the stored hash is the password itself.
func plainHasher(password string) (string, error) { return "plain:" + password, nil }

func plainVerifier(hash, password string) error {
	if hash != "plain:"+password {
		return ErrInvalidCredentials
	}
	return nil
}

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func seedUser(m *memoryStore, id, email string, role access.Role) persistence.User {
	confirmed := testNow.Add(-24 * time.Hour)
	u := persistence.User{
		ID:               id,
		Email:            email,
		FullName:         "User " + id,
		PasswordHash:     "plain:secret123",
		Role:             role.String(),
		IsActive:         true,
		EmailConfirmedAt: &confirmed,
		CreatedAt:        testNow.Add(-48 * time.Hour),
		UpdatedAt:        testNow.Add(-48 * time.Hour),
	}
	m.mu.Lock()
	m.users[id] = u
	m.mu.Unlock()
	return u
}

func seedEvent(m *memoryStore, id, status string, capacity int, start time.Time) persistence.Event {
	e := persistence.Event{
		ID:        id,
		Title:     "Event " + id,
		Category:  "conference",
		Status:    status,
		StartAt:   start,
		EndAt:     start.Add(4 * time.Hour),
		Venue:     "Hall A",
		Capacity:  capacity,
		Currency:  "USD",
		CreatedBy: "admin",
		CreatedAt: testNow.Add(-72 * time.Hour),
		UpdatedAt: testNow.Add(-72 * time.Hour),
	}
	m.mu.Lock()
	m.events[id] = e
	m.mu.Unlock()
	return e
}

func seedAttendee(m *memoryStore, id, eventID, name, status string) persistence.Attendee {
	a := persistence.Attendee{
		ID:            id,
		EventID:       eventID,
		Name:          name,
		Email:         id + "@example.com",
		TicketType:    "general",
		PaymentStatus: "paid",
		QRCode:        "qr-" + id,
		CheckInStatus: status,
		RegisteredAt:  testNow.Add(-time.Hour),
		UpdatedAt:     testNow.Add(-time.Hour),
	}
	m.mu.Lock()
	m.attendees[id] = a
	m.mu.Unlock()
	return a
}
