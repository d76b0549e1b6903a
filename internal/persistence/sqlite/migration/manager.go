package migration

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

// Manager orchestrates scanning, sequence validation and execution.
type Manager struct {
	files    fs.FS
	executor Executor
	logger   *slog.Logger
}

// NewManager creates a manager reading migrations from files.
func NewManager(files fs.FS, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{files: files, executor: executor, logger: logger.With("component", "migration")}
}

// Run applies every pending migration in version order and returns how many ran.
func (m *Manager) Run(ctx context.Context) (int, error) {
	started := time.Now()

	status, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}

	if len(status.Pending) == 0 {
		m.logger.InfoContext(ctx, "database schema up to date", "version", status.CurrentVersion)
		return 0, nil
	}

	m.logger.InfoContext(ctx, "applying migrations",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending),
	)

	for i, mig := range status.Pending {
		elapsed, err := m.executor.Apply(ctx, mig)
		if err != nil {
			m.logger.ErrorContext(ctx, "migration failed",
				"version", mig.Version,
				"file", mig.FilePath,
				"error", err,
			)
			return i, NewMigrationError(mig.Version, mig.FilePath, "execute migration",
				fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", mig.Version,
			"description", mig.Description,
			"duration", elapsed,
		)
	}

	m.logger.InfoContext(ctx, "migrations completed",
		"applied", len(status.Pending),
		"version", status.Pending[len(status.Pending)-1].Version,
		"duration", time.Since(started),
	)
	return len(status.Pending), nil
}

// Status compares the migration files with the schema_migrations table.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, fmt.Errorf("failed to initialize version table: %w", err)
	}

	available, err := Scan(m.files)
	if err != nil {
		return Status{}, fmt.Errorf("failed to scan migrations: %w", err)
	}

	applied, err := m.executor.AppliedVersions(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get applied versions: %w", err)
	}

	if err := validateSequence(available, applied); err != nil {
		return Status{}, fmt.Errorf("migration sequence validation failed: %w", err)
	}

	appliedByVersion := make(map[int]AppliedMigration, len(applied))
	current, currentNumber := "", -1
	for _, a := range applied {
		n, _ := versionNumber(a.Version)
		appliedByVersion[n] = a
		if n > currentNumber {
			current, currentNumber = a.Version, n
		}
	}

	status := Status{CurrentVersion: current, Applied: applied}
	for _, mig := range available {
		a, ok := appliedByVersion[mig.Number()]
		if !ok {
			status.Pending = append(status.Pending, mig)
			continue
		}
		if a.Checksum != "" && a.Checksum != mig.Checksum {
			return Status{}, NewMigrationError(mig.Version, mig.FilePath, "verify checksum",
				fmt.Errorf("%w: applied %s, file %s", ErrChecksumMismatch, a.Checksum, mig.Checksum))
		}
	}
	return status, nil
}

// validateSequence ensures there are no gaps in migration version numbers and
// that every applied version still has a file.
func validateSequence(available []Migration, applied []AppliedMigration) error {
	known := make(map[int]bool, len(available))
	for i, mig := range available {
		n := mig.Number()
		known[n] = true
		if i > 0 && n != available[i-1].Number()+1 {
			return fmt.Errorf("%w: missing migration version %03d in sequence", ErrVersionConflict, available[i-1].Number()+1)
		}
	}

	for _, a := range applied {
		n, err := versionNumber(a.Version)
		if err != nil {
			return NewDatabaseError(a.Version, "", "validate sequence",
				fmt.Errorf("%w: applied version '%s' is not numeric", ErrVersionConflict, a.Version))
		}
		if !known[n] {
			return fmt.Errorf("%w: applied migration %03d not found in available migrations", ErrVersionConflict, n)
		}
	}
	return nil
}
