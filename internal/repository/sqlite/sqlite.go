// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain and a test can open ":memory:" for a fresh, isolated database.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      : a connection pool (NOT a single connection!)
//   - sql.Row     : a single result row
//   - sql.Rows    : multiple result rows (must be closed!)
//
// The pattern is always:
//  1. sql.Open(driverName, dataSourceName) → creates a pool
//  2. db.QueryContext / db.ExecContext     → runs queries
//  3. rows.Scan(&field1, &field2)          → reads results into Go variables
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// BLANK IMPORT:
	// The sqlite package's init() registers a database/sql driver named
	// "sqlite". The named import below is only used for its error type.
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/facet/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

// connection-level settings, applied by the driver to every pooled connection.
//
// PRAGMA foreign_keys is per connection in SQLite, so it has to be part of
// the DSN rather than a one-off Exec: ON DELETE CASCADE from collections to
// collection_repos depends on it.
//
// _time_format=sqlite stores time.Time as "2006-01-02 15:04:05.999999999-07:00",
// which sorts lexically in the same order as chronologically for UTC values.
const dsnParams = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/facet.db"  → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath+"?"+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a brand new, empty database.
	// Pin the pool to one connection so all queries see the migrated schema.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL (Write-Ahead Logging) lets readers proceed while a write is in
	// progress. Unlike foreign_keys it is persisted in the database file.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every start.
//
// COLLATE NOCASE:
// GitHub logins and repository names are case-insensitive, so the columns
// that are looked up or deduplicated by them compare case-insensitively.
// That makes both the username lookup and the (collection_id, full_name)
// uniqueness rule ignore case.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id              TEXT PRIMARY KEY,
			github_username TEXT NOT NULL COLLATE NOCASE UNIQUE,
			display_name    TEXT NOT NULL DEFAULT '',
			avatar_url      TEXT NOT NULL DEFAULT '',
			bio             TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	// user_id is the identity id. It deliberately has no foreign key to
	// profiles: profile sync at sign-in is best-effort, and a missing profile
	// row must not stop the owner from creating collections.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_public   BOOLEAN NOT NULL DEFAULT TRUE,
			position    INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_collections_user_position ON collections(user_id, position);
	`)
	if err != nil {
		return fmt.Errorf("creating collections table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS collection_repos (
			id            TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
			owner         TEXT NOT NULL,
			repo_name     TEXT NOT NULL,
			full_name     TEXT NOT NULL COLLATE NOCASE,
			description   TEXT NOT NULL DEFAULT '',
			note          TEXT NOT NULL DEFAULT '',
			position      INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (collection_id, full_name)
		);
		CREATE INDEX IF NOT EXISTS idx_collection_repos_collection_position ON collection_repos(collection_id, position);
	`)
	if err != nil {
		return fmt.Errorf("creating collection_repos table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
//
// modernc returns *sqlite.Error carrying the (extended) result code. The
// primary code lives in the low byte; the message tells UNIQUE apart from
// FOREIGN KEY or NOT NULL failures, which share SQLITE_CONSTRAINT.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(se.Error(), "UNIQUE")
}

// placeholders returns "(?, ?, ?), (?, ?, ?)" for rows × cols.
func placeholders(rows, cols int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	all := make([]string, rows)
	for i := range all {
		all[i] = row
	}
	return strings.Join(all, ", ")
}
