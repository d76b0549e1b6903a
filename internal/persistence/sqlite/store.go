// Package sqlite implements the persistence repositories on top of SQLite
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/eventflow/internal/persistence/sqlite/migration"
)

// Store bundles one connection pool with every repository built on it.
type Store struct {
	Pool        *ConnectionPool
	Users       *UserRepository
	Sessions    *SessionRepository
	Permissions *PermissionRepository
	Events      *EventRepository
	Attendees   *AttendeeRepository
	Drafts      *DraftRepository
	Preferences *PreferenceRepository
}

// Open connects to the database described by config and applies pending
// migrations before returning.
func Open(ctx context.Context, config migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}

	if _, err := Migrate(ctx, pool, logger); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{
		Pool:        pool,
		Users:       NewUserRepository(pool),
		Sessions:    NewSessionRepository(pool),
		Permissions: NewPermissionRepository(pool),
		Events:      NewEventRepository(pool),
		Attendees:   NewAttendeeRepository(pool),
		Drafts:      NewDraftRepository(pool),
		Preferences: NewPreferenceRepository(pool),
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	return s.Pool.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}
