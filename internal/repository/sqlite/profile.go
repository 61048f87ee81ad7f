package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/model"
)

const profileColumns = `id, github_username, display_name, avatar_url, bio, created_at, updated_at`

// UpsertProfile inserts or updates the profile keyed by its identity id.
//
// ON CONFLICT ... DO UPDATE:
// Unlike INSERT OR REPLACE, an upsert keeps the existing row (and its
// created_at) and only overwrites the listed columns. The stored created_at
// is read back afterwards so the caller sees the canonical record.
func (db *DB) UpsertProfile(ctx context.Context, p *model.Profile) error {
	now := time.Now().UTC()
	p.UpdatedAt = now
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			github_username = excluded.github_username,
			display_name    = excluded.display_name,
			avatar_url      = excluded.avatar_url,
			bio             = excluded.bio,
			updated_at      = excluded.updated_at`,
		p.ID,
		p.GitHubUsername,
		p.DisplayName,
		p.AvatarURL,
		p.Bio,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate(fmt.Sprintf("username %q is held by another profile", p.GitHubUsername))
		}
		return fmt.Errorf("sqlite: upserting profile %s: %w", p.ID, err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT created_at FROM profiles WHERE id = ?`, p.ID,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: reading back profile %s: %w", p.ID, err)
	}
	return nil
}

// GetProfile retrieves a profile by identity id.
func (db *DB) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("profile", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", id, err)
	}
	return p, nil
}

// FindProfileByUsername looks a profile up by GitHub login. The column is
// declared COLLATE NOCASE, so "Alice" and "alice" match the same row.
func (db *DB) FindProfileByUsername(ctx context.Context, username string) (*model.Profile, bool, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE github_username = ?`, username,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: finding profile %q: %w", username, err)
	}
	return p, true, nil
}

// ListUsernames feeds the sitemap.
func (db *DB) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT github_username FROM profiles ORDER BY github_username`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing usernames: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning username: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating usernames: %w", err)
	}
	return names, nil
}

func scanProfile(row *sql.Row) (*model.Profile, error) {
	var p model.Profile
	err := row.Scan(
		&p.ID,
		&p.GitHubUsername,
		&p.DisplayName,
		&p.AvatarURL,
		&p.Bio,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
