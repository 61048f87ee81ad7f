package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/model"
)

const (
	upsertProfileSQL = `INSERT INTO profiles (id, github_username, display_name, avatar_url, bio, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    github_username = EXCLUDED.github_username,
    display_name    = EXCLUDED.display_name,
    avatar_url      = EXCLUDED.avatar_url,
    bio             = EXCLUDED.bio,
    updated_at      = EXCLUDED.updated_at
RETURNING created_at`

	getProfileSQL = `SELECT id, github_username, display_name, avatar_url, bio, created_at, updated_at
FROM profiles WHERE id = $1`

	findProfileSQL = `SELECT id, github_username, display_name, avatar_url, bio, created_at, updated_at
FROM profiles WHERE lower(github_username) = lower($1)`

	listUsernamesSQL = `SELECT github_username FROM profiles ORDER BY lower(github_username)`
)

func (db *DB) UpsertProfile(ctx context.Context, p *model.Profile) error {
	now := time.Now().UTC()
	p.UpdatedAt = now
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}

	err := db.conn.QueryRowContext(ctx, upsertProfileSQL,
		p.ID, p.GitHubUsername, p.DisplayName, p.AvatarURL, p.Bio, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate(fmt.Sprintf("username %q is held by another profile", p.GitHubUsername))
		}
		return fmt.Errorf("postgres: upsert profile %s: %w", p.ID, err)
	}
	return nil
}

func (db *DB) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx, getProfileSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("profile", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get profile %s: %w", id, err)
	}
	return p, nil
}

func (db *DB) FindProfileByUsername(ctx context.Context, username string) (*model.Profile, bool, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx, findProfileSQL, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: find profile %q: %w", username, err)
	}
	return p, true, nil
}

func (db *DB) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, listUsernamesSQL)
	if err != nil {
		return nil, fmt.Errorf("postgres: list usernames: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres: scan username: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate usernames: %w", err)
	}
	return names, nil
}

func scanProfile(s scanner) (*model.Profile, error) {
	var p model.Profile
	if err := s.Scan(&p.ID, &p.GitHubUsername, &p.DisplayName, &p.AvatarURL, &p.Bio, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
