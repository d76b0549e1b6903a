package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/eventflow/internal/persistence/sqlite"
	"github.com/example/eventflow/internal/persistence/sqlite/migration"
)

// SQLiteHarness is a migrated, file backed store that lives for one test.
type SQLiteHarness struct {
	*sqlite.Store
}

// NewSQLiteHarness opens a fresh database in a temporary directory. The
// store is closed when the test ends.
func NewSQLiteHarness(t testing.TB) *SQLiteHarness {
	t.Helper()

	config := migration.TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "eventflow.db"))
	store, err := sqlite.Open(context.Background(), config, nil)
	if err != nil {
		t.Fatalf("open sqlite harness: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close sqlite harness: %v", err)
		}
	})
	return &SQLiteHarness{Store: store}
}

// SeedUsers inserts the fixtures and fails the test on error.
func (h *SQLiteHarness) SeedUsers(t testing.TB, users ...UserFixture) {
	t.Helper()
	for _, u := range users {
		if err := h.Users.CreateUser(context.Background(), u.Persistence()); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
}

// SeedEvents inserts the fixtures and fails the test on error.
func (h *SQLiteHarness) SeedEvents(t testing.TB, events ...EventFixture) {
	t.Helper()
	for _, e := range events {
		if err := h.Events.CreateEvent(context.Background(), e.Persistence()); err != nil {
			t.Fatalf("seed event %s: %v", e.ID, err)
		}
	}
}

// SeedAttendees registers the fixtures and fails the test on error.
func (h *SQLiteHarness) SeedAttendees(t testing.TB, attendees ...AttendeeFixture) {
	t.Helper()
	for _, a := range attendees {
		if err := h.Attendees.RegisterAttendee(context.Background(), a.Persistence()); err != nil {
			t.Fatalf("seed attendee %s: %v", a.ID, err)
		}
	}
}
