package migration

import (
	"context"
	"time"
)

// Migration is a single schema file.
type Migration struct {
	Version     string
	Description string
	SQL         string
	FilePath    string
	Checksum    string
}

// Number returns the numeric version.
func (m Migration) Number() int {
	n, _ := versionNumber(m.Version)
	return n
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status summarizes the migration state of a database.
type Status struct {
	CurrentVersion string
	Applied        []AppliedMigration
	Pending        []Migration
}

// Executor applies migrations and tracks which ones ran.
type Executor interface {
	InitializeVersionTable(ctx context.Context) error
	// Apply runs the migration and records it in one transaction.
	Apply(ctx context.Context, m Migration) (time.Duration, error)
	AppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}
