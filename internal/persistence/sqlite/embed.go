package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/example/eventflow/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(fmt.Sprintf("sqlite: embedded migrations: %v", err))
	}
	return sub
}

// Migrate applies every pending embedded migration to the pool's database.
func Migrate(ctx context.Context, pool *ConnectionPool, logger *slog.Logger) (int, error) {
	manager := migration.NewManager(Migrations(), migration.NewSQLiteExecutor(pool.DB()), logger)
	return manager.Run(ctx)
}
