package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies all up migrations in lexical order. Statements use
// IF NOT EXISTS so re-applying is safe; this doubles as the repair path.
func Migrate(ctx context.Context, db *DB) error {
	return applyMigrations(ctx, db, ".up.sql")
}

// MigrateDown rolls the schema back. Used by tests and the configure CLI only.
func MigrateDown(ctx context.Context, db *DB) error {
	return applyMigrations(ctx, db, ".down.sql")
}

func applyMigrations(ctx context.Context, db *DB, suffix string) error {
	entries, err := fs.Glob(migrationFiles, "migrations/*"+suffix)
	if err != nil {
		return fmt.Errorf("failed to glob migrations: %w", err)
	}
	sort.Strings(entries)
	for _, name := range entries {
		sqlBytes, readErr := migrationFiles.ReadFile(name)
		if readErr != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, readErr)
		}
		if _, execErr := db.ExecContext(ctx, string(sqlBytes)); execErr != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, execErr)
		}
	}
	return nil
}
