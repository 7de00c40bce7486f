// Package store is the durable persistence layer backing the queue
// registry, ownership store, thread mappings, and session index. It
// wraps a single SQLite database (modernc.org/sqlite, pure Go, no
// cgo) in WAL mode with goose-managed migrations.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database at path and configures it for the
// single-writer access pattern this process uses. Use ":memory:" for
// an in-memory database in tests.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite only supports a single writer at a time; serialize at the
	// connection-pool level rather than fight SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return db, nil
}
