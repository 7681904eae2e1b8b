// Package db persists turret runtime history: control sessions, every
// transmitted command, sampled telemetry, and completed engagements. The
// store is a single sqlite database whose schema is managed by golang-migrate
// (see migrations/ at the repository root). All timestamps are stored as Unix
// milliseconds.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
	path string
}

// Pragmas ride on the DSN so they apply to every pooled connection, not just
// the one an Exec happens to land on. WAL keeps the recorder's writes from
// stalling API reads; the busy timeout covers checkpoint lock windows.
const pragmaDSN = "?_pragma=busy_timeout(5000)" +
	"&_pragma=journal_mode(WAL)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=temp_store(MEMORY)" +
	"&_pragma=foreign_keys(1)"

// Open opens (creating if necessary) the sqlite database at path. The schema
// is not touched here; callers run MigrateUp or CheckMigrations before use.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", "file:"+path+pragmaDSN)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	return &DB{DB: sqlDB, path: path}, nil
}

// Path returns the filesystem path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

const (
	busyMaxAttempts = 5
	busyBaseDelay   = 10 * time.Millisecond
)

// isSQLiteBusy reports whether err is a transient sqlite lock contention
// error worth retrying.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// retryOnBusy runs fn, retrying with exponential backoff while it fails with
// a busy error. Non-busy errors return immediately.
func retryOnBusy(fn func() error) error {
	delay := busyBaseDelay
	var err error
	for attempt := 0; attempt < busyMaxAttempts; attempt++ {
		if err = fn(); err == nil || !isSQLiteBusy(err) {
			return err
		}
		if attempt < busyMaxAttempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("database busy after %d attempts: %w", busyMaxAttempts, err)
}
