package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLiteExecutor implements Executor for SQLite databases
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a new SQLite migration executor
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	const createTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)
	`
	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return NewDatabaseError("", createTableSQL, "create schema_migrations table", err)
	}
	return nil
}

// Apply runs every statement of m and records the version in the same
// transaction, so a failed migration leaves no trace.
func (e *SQLiteExecutor) Apply(ctx context.Context, m Migration) (elapsed time.Duration, err error) {
	statements := SplitStatements(m.SQL)
	if len(statements) == 0 {
		return 0, NewMigrationError(m.Version, m.FilePath, "parse SQL",
			fmt.Errorf("%w: no SQL statements found in migration", ErrInvalidMigrationFile))
	}

	start := e.now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewDatabaseError(m.Version, "", "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return 0, NewDatabaseError(m.Version, stmt, fmt.Sprintf("execute statement %d", i+1), execErr)
		}
	}

	elapsed = e.now().Sub(start)
	const insertSQL = `INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`
	if _, execErr := tx.ExecContext(ctx, insertSQL, m.Version, e.now().UTC().Format(time.RFC3339), m.Checksum, elapsed.Milliseconds()); execErr != nil {
		return 0, NewDatabaseError(m.Version, insertSQL, "record migration", execErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = NewDatabaseError(m.Version, "", "commit transaction", commitErr)
		return 0, err
	}
	return elapsed, nil
}

// AppliedVersions returns all applied migration versions with timestamps
func (e *SQLiteExecutor) AppliedVersions(ctx context.Context) ([]AppliedMigration, error) {
	const querySQL = `
		SELECT version, applied_at, execution_time_ms, checksum
		FROM schema_migrations
		ORDER BY CAST(version AS INTEGER) ASC
	`
	rows, err := e.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, NewDatabaseError("", querySQL, "get applied versions", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			a            AppliedMigration
			appliedAtStr string
			elapsedMs    int64
		)
		if err := rows.Scan(&a.Version, &appliedAtStr, &elapsedMs, &a.Checksum); err != nil {
			return nil, NewDatabaseError("", querySQL, "scan applied migration", err)
		}
		if a.AppliedAt, err = time.Parse(time.RFC3339, appliedAtStr); err != nil {
			return nil, NewDatabaseError(a.Version, querySQL, "parse applied_at", err)
		}
		a.ExecutionTime = time.Duration(elapsedMs) * time.Millisecond
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", querySQL, "iterate applied migrations", err)
	}
	return applied, nil
}

// SplitStatements splits a migration into statements on semicolons that are
// outside string literals, dropping comment-only lines.
func SplitStatements(sql string) []string {
	var (
		statements []string
		current    strings.Builder
		quote      rune
	)
	flush := func() {
		if stmt := strings.TrimSpace(stripComments(current.String())); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(sql, "\n") {
		if quote == 0 && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for _, r := range line {
			switch {
			case quote != 0:
				if r == quote {
					quote = 0
				}
			case r == '\'' || r == '"':
				quote = r
			case r == ';':
				flush()
				continue
			}
			current.WriteRune(r)
		}
		current.WriteRune('\n')
	}
	flush()
	return statements
}
