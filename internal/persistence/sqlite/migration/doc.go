// Package migration applies versioned SQL schema files to a SQLite database.
//
// Migration files are read from an fs.FS (usually an embed.FS compiled into
// the binary) and must be named {version}_{description}.sql, for example
// "001_initial_schema.sql". Versions are applied in numeric order, each in
// its own transaction, and recorded together with their checksum in the
// schema_migrations table.
//
// Example usage:
//
//	manager := migration.NewManager(files, migration.NewSQLiteExecutor(db), logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
