package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

const (
	defaultMaxOpenConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	pingTimeout            = 5 * time.Second
)

// DB wraps the shared connection pool of one process. The server and the
// trigger daemon each own their own DB; a handle is never passed across
// processes, cross-process safety comes from the engine's own locking.
type DB struct {
	*sql.DB
}

// New opens the connection pool for a long-lived process and verifies it.
func New(databaseURL string) (*DB, error) {
	return open(databaseURL, defaultMaxOpenConns)
}

// OpenIndependent opens a fresh, narrow connection for a single background
// invocation. The trigger handler cannot reuse the foreground pool, so each
// geofence event gets its own handle and must close it on exit. Read-only
// handles are pinned to read-only transactions by the session default.
func OpenIndependent(databaseURL string, readOnly bool) (*DB, error) {
	db, err := open(databaseURL, 1)
	if err != nil {
		return nil, err
	}
	if readOnly {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		if _, err := db.ExecContext(ctx, "SET default_transaction_read_only = on"); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				_ = closeErr
			}
			return nil, fmt.Errorf("failed to set read-only mode: %w", err)
		}
	}
	return db, nil
}

func open(databaseURL string, maxOpen int) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		if closeErr := sqlDB.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// ExecInTransaction runs fn inside a transaction, committing on nil and
// rolling back on error or panic. Multi-statement writes that must be atomic
// (task insert plus geofence reference update) go through here.
func (db *DB) ExecInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CheckIntegrity verifies that the expected tables are present and readable.
// It is a maintenance operation for the configure CLI, never invoked
// automatically mid-transaction. Returns true when the store is healthy.
func (db *DB) CheckIntegrity(ctx context.Context) (bool, error) {
	for _, table := range []string{"tasks", "geofences", "task_history", "notification_history"} {
		var one int
		query := fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", table) //nolint:gosec // table names are a fixed list
		if err := db.QueryRowContext(ctx, query).Scan(&one); err != nil && err != sql.ErrNoRows {
			return false, fmt.Errorf("integrity check failed on %s: %w", table, err)
		}
	}
	return true, nil
}

// Repair recreates the schema after a failed integrity check. Existing data
// in healthy tables is preserved; missing tables are recreated empty.
func (db *DB) Repair(ctx context.Context) error {
	if err := Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to repair schema: %w", err)
	}
	return nil
}
