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
)

const (
	listCollectionsSQL = `SELECT c.id, c.user_id, c.title, c.description, c.is_public, c.position, c.created_at,
    (SELECT COUNT(*) FROM collection_repos r WHERE r.collection_id = c.id)
FROM collections c
WHERE c.user_id = $1
ORDER BY c.position ASC, c.created_at DESC, c.id DESC`

	getCollectionSQL = `SELECT c.id, c.user_id, c.title, c.description, c.is_public, c.position, c.created_at,
    (SELECT COUNT(*) FROM collection_repos r WHERE r.collection_id = c.id)
FROM collections c
WHERE c.id = $1`

	createCollectionSQL = `INSERT INTO collections (id, user_id, title, description, is_public, position, created_at)
VALUES ($1, $2, $3, $4, $5, (SELECT COALESCE(MAX(position) + 1, 0) FROM collections WHERE user_id = $2), $6)
RETURNING position`

	updateCollectionSQL = `UPDATE collections
SET title = COALESCE($1, title), description = COALESCE($2, description)
WHERE id = $3 AND user_id = $4
RETURNING id, user_id, title, description, is_public, position, created_at,
    (SELECT COUNT(*) FROM collection_repos r WHERE r.collection_id = collections.id)`

	deleteCollectionSQL = `DELETE FROM collections WHERE id = $1 AND user_id = $2`

	// Parallel arrays are zipped by unnest; WITH ORDINALITY numbers them
	// from 1, which becomes the new zero-based position.
	reorderCollectionsSQL = `INSERT INTO collections (id, user_id, title, description, is_public, position, created_at)
SELECT v.id, $1, v.title, v.description, v.is_public, v.ord - 1, v.created_at
FROM unnest($2::text[], $3::text[], $4::text[], $5::boolean[], $6::timestamptz[])
    WITH ORDINALITY AS v(id, title, description, is_public, created_at, ord)
ON CONFLICT (id) DO UPDATE SET position = EXCLUDED.position
WHERE collections.user_id = EXCLUDED.user_id`
)

func (db *DB) ListCollections(ctx context.Context, userID string) ([]model.Collection, error) {
	rows, err := db.conn.QueryContext(ctx, listCollectionsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list collections for %s: %w", userID, err)
	}
	defer rows.Close()

	collections := []model.Collection{}
	for rows.Next() {
		var c model.Collection
		if err := scanCollection(rows, &c); err != nil {
			return nil, fmt.Errorf("postgres: scan collection: %w", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate collections: %w", err)
	}
	return collections, nil
}

func (db *DB) GetCollection(ctx context.Context, id string) (*model.Collection, error) {
	var c model.Collection
	err := scanCollection(db.conn.QueryRowContext(ctx, getCollectionSQL, id), &c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("collection", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get collection %s: %w", id, err)
	}
	return &c, nil
}

func (db *DB) CreateCollection(ctx context.Context, c *model.Collection) error {
	if c.ID == "" {
		c.ID = xid.New().String()
	}
	c.CreatedAt = time.Now().UTC()
	c.Count = 0

	err := db.conn.QueryRowContext(ctx, createCollectionSQL,
		c.ID, c.UserID, c.Title, c.Description, c.IsPublic, c.CreatedAt,
	).Scan(&c.Position)
	if err != nil {
		return fmt.Errorf("postgres: create collection: %w", err)
	}
	return nil
}

func (db *DB) UpdateCollection(ctx context.Context, ownerID, id string, upd model.CollectionUpdate) (*model.Collection, error) {
	var c model.Collection
	err := scanCollection(db.conn.QueryRowContext(ctx, updateCollectionSQL,
		upd.Title, upd.Description, id, ownerID,
	), &c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("collection", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: update collection %s: %w", id, err)
	}
	return &c, nil
}

func (db *DB) DeleteCollection(ctx context.Context, ownerID, id string) error {
	res, err := db.conn.ExecContext(ctx, deleteCollectionSQL, id, ownerID)
	if err != nil {
		return fmt.Errorf("postgres: delete collection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("collection", id)
	}
	return nil
}

// ReorderCollections sends the new order as parallel arrays so the whole
// reorder is one statement regardless of length.
func (db *DB) ReorderCollections(ctx context.Context, ownerID string, ordered []model.Collection) error {
	if len(ordered) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ids := make([]string, len(ordered))
	titles := make([]string, len(ordered))
	descs := make([]string, len(ordered))
	public := make([]bool, len(ordered))
	created := make([]string, len(ordered))
	for i, c := range ordered {
		ids[i], titles[i], descs[i], public[i] = c.ID, c.Title, c.Description, c.IsPublic
		created[i] = timestamp(c.CreatedAt, now)
	}

	_, err := db.conn.ExecContext(ctx, reorderCollectionsSQL,
		ownerID, pq.Array(ids), pq.Array(titles), pq.Array(descs), pq.Array(public), pq.Array(created),
	)
	if err != nil {
		return fmt.Errorf("postgres: reorder collections for %s: %w", ownerID, err)
	}
	return nil
}

// timestamp renders t for a timestamptz[] literal, substituting fallback
// for the zero time.
func timestamp(t, fallback time.Time) string {
	if t.IsZero() {
		t = fallback
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func scanCollection(s scanner, c *model.Collection) error {
	return s.Scan(&c.ID, &c.UserID, &c.Title, &c.Description, &c.IsPublic, &c.Position, &c.CreatedAt, &c.Count)
}
