package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/model"
	"github.com/sakif/facet/internal/repository"
)

const membershipColumns = `id, collection_id, owner, repo_name, full_name, description, note, position, created_at`

// ownedCollections restricts a membership statement to the actor's collections.
const ownedCollections = `collection_id IN (SELECT id FROM collections WHERE user_id = ?)`

// ListCollectionRepos returns one page of a collection's repositories plus
// the total, in the same order rule as collections.
func (db *DB) ListCollectionRepos(ctx context.Context, collectionID string, opts repository.ListOptions) (*model.RepoPage, error) {
	opts = opts.Normalize()

	page := &model.RepoPage{Repos: []model.CollectionRepo{}}
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collection_repos WHERE collection_id = ?`, collectionID,
	).Scan(&page.Total)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting repos of %s: %w", collectionID, err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM collection_repos
		 WHERE collection_id = ?
		 ORDER BY position ASC, created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		collectionID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing repos of %s: %w", collectionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r model.CollectionRepo
		if err := scanMembership(rows, &r); err != nil {
			return nil, fmt.Errorf("sqlite: scanning repo row: %w", err)
		}
		page.Repos = append(page.Repos, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating repo rows: %w", err)
	}
	return page, nil
}

// ClaimedFullNames lists every repository the user placed in any collection.
// full_name is NOCASE, so DISTINCT folds differently-cased duplicates.
func (db *DB) ClaimedFullNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT r.full_name
		 FROM collection_repos r
		 JOIN collections c ON c.id = r.collection_id
		 WHERE c.user_id = ?
		 ORDER BY r.full_name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing claimed repos for %s: %w", userID, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning claimed repo: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating claimed repos: %w", err)
	}
	return names, nil
}

// AddCollectionRepo appends a repository to an owned collection.
//
// INSERT ... SELECT FROM collections WHERE owned: when the collection does
// not exist or belongs to someone else the SELECT yields no row, nothing is
// inserted and RETURNING produces sql.ErrNoRows.
func (db *DB) AddCollectionRepo(ctx context.Context, ownerID string, r *model.CollectionRepo) error {
	if r.ID == "" {
		r.ID = xid.New().String()
	}
	r.CreatedAt = time.Now().UTC()

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO collection_repos (`+membershipColumns+`)
		 SELECT ?, c.id, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM collection_repos WHERE collection_id = c.id),
			?
		 FROM collections c
		 WHERE c.id = ? AND c.user_id = ?
		 RETURNING position`,
		r.ID,
		r.Owner,
		r.RepoName,
		r.FullName,
		r.Description,
		r.Note,
		r.CreatedAt,
		r.CollectionID,
		ownerID,
	).Scan(&r.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("collection", r.CollectionID)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate(fmt.Sprintf("%s is already in this collection", r.FullName))
		}
		return fmt.Errorf("sqlite: adding %s to %s: %w", r.FullName, r.CollectionID, err)
	}
	return nil
}

// RemoveCollectionRepo deletes one membership. Remaining positions are not
// compacted; gaps sort the same as contiguous values.
func (db *DB) RemoveCollectionRepo(ctx context.Context, ownerID, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM collection_repos WHERE id = ? AND `+ownedCollections, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing repo %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("repo", id)
	}
	return nil
}

func (db *DB) UpdateRepoNote(ctx context.Context, ownerID, id, note string) (*model.CollectionRepo, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE collection_repos SET note = ? WHERE id = ? AND `+ownedCollections,
		note, id, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating note of %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("repo", id)
	}

	var r model.CollectionRepo
	err = scanMembership(db.conn.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM collection_repos WHERE id = ?`, id,
	), &r)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading repo %s: %w", id, err)
	}
	return &r, nil
}

// ReorderCollectionRepos persists position = index for each row.
//
// Every row must belong to a collection the owner holds; the check runs
// first so an inserted row can never land in someone else's collection.
// The write itself is one upsert statement.
func (db *DB) ReorderCollectionRepos(ctx context.Context, ownerID string, ordered []model.CollectionRepo) error {
	if len(ordered) == 0 {
		return nil
	}

	seen := map[string]bool{}
	for _, r := range ordered {
		if seen[r.CollectionID] {
			continue
		}
		seen[r.CollectionID] = true
		var owned bool
		err := db.conn.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM collections WHERE id = ? AND user_id = ?)`,
			r.CollectionID, ownerID,
		).Scan(&owned)
		if err != nil {
			return fmt.Errorf("sqlite: checking collection %s: %w", r.CollectionID, err)
		}
		if !owned {
			return apperror.NotFound("collection", r.CollectionID)
		}
	}

	now := time.Now().UTC()
	args := make([]any, 0, len(ordered)*9)
	for i, r := range ordered {
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}
		args = append(args, r.ID, r.CollectionID, r.Owner, r.RepoName, r.FullName, r.Description, r.Note, i, created.UTC())
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO collection_repos (`+membershipColumns+`)
		 VALUES `+placeholders(len(ordered), 9)+`
		 ON CONFLICT(id) DO UPDATE SET position = excluded.position
		 WHERE collection_repos.collection_id = excluded.collection_id`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate("a repository appears twice in the new order")
		}
		return fmt.Errorf("sqlite: reordering repos for %s: %w", ownerID, err)
	}
	return nil
}

func scanMembership(s scanner, r *model.CollectionRepo) error {
	return s.Scan(
		&r.ID,
		&r.CollectionID,
		&r.Owner,
		&r.RepoName,
		&r.FullName,
		&r.Description,
		&r.Note,
		&r.Position,
		&r.CreatedAt,
	)
}
