package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/xid"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/model"
	"github.com/sakif/facet/internal/repository"
)

const (
	countReposSQL = `SELECT COUNT(*) FROM collection_repos WHERE collection_id = $1`

	listReposSQL = `SELECT id, collection_id, owner, repo_name, full_name, description, note, position, created_at
FROM collection_repos
WHERE collection_id = $1
ORDER BY position ASC, created_at DESC, id DESC
LIMIT $2 OFFSET $3`

	claimedReposSQL = `SELECT DISTINCT ON (lower(r.full_name)) r.full_name
FROM collection_repos r
JOIN collections c ON c.id = r.collection_id
WHERE c.user_id = $1
ORDER BY lower(r.full_name), r.full_name`

	addRepoSQL = `INSERT INTO collection_repos (id, collection_id, owner, repo_name, full_name, description, note, position, created_at)
SELECT $1, c.id, $2, $3, $4, $5, $6,
    (SELECT COALESCE(MAX(position) + 1, 0) FROM collection_repos WHERE collection_id = c.id),
    $7
FROM collections c
WHERE c.id = $8 AND c.user_id = $9
RETURNING position`

	removeRepoSQL = `DELETE FROM collection_repos
WHERE id = $1 AND collection_id IN (SELECT id FROM collections WHERE user_id = $2)`

	updateNoteSQL = `UPDATE collection_repos SET note = $1
WHERE id = $2 AND collection_id IN (SELECT id FROM collections WHERE user_id = $3)
RETURNING id, collection_id, owner, repo_name, full_name, description, note, position, created_at`

	ownedCollectionCountSQL = `SELECT COUNT(*) FROM collections WHERE user_id = $1 AND id = ANY($2)`

	reorderReposSQL = `INSERT INTO collection_repos (id, collection_id, owner, repo_name, full_name, description, note, position, created_at)
SELECT v.id, v.collection_id, v.owner, v.repo_name, v.full_name, v.description, v.note, v.ord - 1, v.created_at
FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[], $8::timestamptz[])
    WITH ORDINALITY AS v(id, collection_id, owner, repo_name, full_name, description, note, created_at, ord)
ON CONFLICT (id) DO UPDATE SET position = EXCLUDED.position
WHERE collection_repos.collection_id = EXCLUDED.collection_id`
)

func (db *DB) ListCollectionRepos(ctx context.Context, collectionID string, opts repository.ListOptions) (*model.RepoPage, error) {
	opts = opts.Normalize()

	page := &model.RepoPage{Repos: []model.CollectionRepo{}}
	if err := db.conn.QueryRowContext(ctx, countReposSQL, collectionID).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("postgres: count repos of %s: %w", collectionID, err)
	}

	rows, err := db.conn.QueryContext(ctx, listReposSQL, collectionID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list repos of %s: %w", collectionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r model.CollectionRepo
		if err := scanMembership(rows, &r); err != nil {
			return nil, fmt.Errorf("postgres: scan repo: %w", err)
		}
		page.Repos = append(page.Repos, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate repos: %w", err)
	}
	return page, nil
}

func (db *DB) ClaimedFullNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, claimedReposSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: claimed repos for %s: %w", userID, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres: scan claimed repo: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate claimed repos: %w", err)
	}
	return names, nil
}

func (db *DB) AddCollectionRepo(ctx context.Context, ownerID string, r *model.CollectionRepo) error {
	if r.ID == "" {
		r.ID = xid.New().String()
	}
	r.CreatedAt = time.Now().UTC()

	err := db.conn.QueryRowContext(ctx, addRepoSQL,
		r.ID, r.Owner, r.RepoName, r.FullName, r.Description, r.Note, r.CreatedAt,
		r.CollectionID, ownerID,
	).Scan(&r.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("collection", r.CollectionID)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate(fmt.Sprintf("%s is already in this collection", r.FullName))
		}
		return fmt.Errorf("postgres: add %s to %s: %w", r.FullName, r.CollectionID, err)
	}
	return nil
}

func (db *DB) RemoveCollectionRepo(ctx context.Context, ownerID, id string) error {
	res, err := db.conn.ExecContext(ctx, removeRepoSQL, id, ownerID)
	if err != nil {
		return fmt.Errorf("postgres: remove repo %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("repo", id)
	}
	return nil
}

func (db *DB) UpdateRepoNote(ctx context.Context, ownerID, id, note string) (*model.CollectionRepo, error) {
	var r model.CollectionRepo
	err := scanMembership(db.conn.QueryRowContext(ctx, updateNoteSQL, note, id, ownerID), &r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("repo", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: update note of %s: %w", id, err)
	}
	return &r, nil
}

// ReorderCollectionRepos first confirms the actor owns every collection the
// rows point at, then writes all positions in one upsert.
func (db *DB) ReorderCollectionRepos(ctx context.Context, ownerID string, ordered []model.CollectionRepo) error {
	if len(ordered) == 0 {
		return nil
	}

	var collectionIDs []string
	seen := map[string]bool{}
	for _, r := range ordered {
		if !seen[r.CollectionID] {
			seen[r.CollectionID] = true
			collectionIDs = append(collectionIDs, r.CollectionID)
		}
	}

	var owned int
	err := db.conn.QueryRowContext(ctx, ownedCollectionCountSQL, ownerID, pq.Array(collectionIDs)).Scan(&owned)
	if err != nil {
		return fmt.Errorf("postgres: check collection ownership: %w", err)
	}
	if owned != len(collectionIDs) {
		return apperror.NotFound("collection", collectionIDs[0])
	}

	now := time.Now().UTC()
	n := len(ordered)
	ids, cols, owners, names := make([]string, n), make([]string, n), make([]string, n), make([]string, n)
	fulls, descs, notes, created := make([]string, n), make([]string, n), make([]string, n), make([]string, n)
	for i, r := range ordered {
		ids[i], cols[i], owners[i], names[i] = r.ID, r.CollectionID, r.Owner, r.RepoName
		fulls[i], descs[i], notes[i] = r.FullName, r.Description, r.Note
		created[i] = timestamp(r.CreatedAt, now)
	}

	_, err = db.conn.ExecContext(ctx, reorderReposSQL,
		pq.Array(ids), pq.Array(cols), pq.Array(owners), pq.Array(names),
		pq.Array(fulls), pq.Array(descs), pq.Array(notes), pq.Array(created),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate("a repository appears twice in the new order")
		}
		return fmt.Errorf("postgres: reorder repos for %s: %w", ownerID, err)
	}
	return nil
}

func scanMembership(s scanner, r *model.CollectionRepo) error {
	return s.Scan(&r.ID, &r.CollectionID, &r.Owner, &r.RepoName, &r.FullName, &r.Description, &r.Note, &r.Position, &r.CreatedAt)
}
