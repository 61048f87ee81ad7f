// Package postgres implements repository.Store on PostgreSQL through lib/pq.
//
// It is selected instead of the embedded SQLite store when DATABASE_URL is
// set. Statements are package constants so tests can match them exactly
// with go-sqlmock.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/sakif/facet/internal/repository"
)

var _ repository.Store = (*DB)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    id              TEXT PRIMARY KEY,
    github_username TEXT NOT NULL,
    display_name    TEXT NOT NULL DEFAULT '',
    avatar_url      TEXT NOT NULL DEFAULT '',
    bio             TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS profiles_username_ci ON profiles (lower(github_username));

CREATE TABLE IF NOT EXISTS collections (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    is_public   BOOLEAN NOT NULL DEFAULT TRUE,
    position    INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS collections_user_position ON collections (user_id, position);

CREATE TABLE IF NOT EXISTS collection_repos (
    id            TEXT PRIMARY KEY,
    collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
    owner         TEXT NOT NULL,
    repo_name     TEXT NOT NULL,
    full_name     TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    note          TEXT NOT NULL DEFAULT '',
    position      INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS collection_repos_name_ci ON collection_repos (collection_id, lower(full_name));
CREATE INDEX IF NOT EXISTS collection_repos_collection_position ON collection_repos (collection_id, position);
`

// DB implements repository.Store.
type DB struct {
	conn *sql.DB
}

// New connects to dsn, verifies the connection and applies the schema.
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// NewWithDB wraps an already-open pool without touching the schema.
func NewWithDB(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// unique_violation, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type scanner interface {
	Scan(dest ...any) error
}
