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
)

// collectionSelect reads every column plus the live member count.
// The correlated subquery keeps Count honest without a denormalized column.
const collectionSelect = `
	SELECT c.id, c.user_id, c.title, c.description, c.is_public, c.position, c.created_at,
	       (SELECT COUNT(*) FROM collection_repos r WHERE r.collection_id = c.id)
	FROM collections c`

// ListCollections returns a user's collections in display order.
//
// ORDER BY position, then newest first: rows created before any reorder all
// share position 0 in older data, so created_at keeps their order stable.
// id is the last tie-breaker so two calls never disagree.
func (db *DB) ListCollections(ctx context.Context, userID string) ([]model.Collection, error) {
	rows, err := db.conn.QueryContext(ctx,
		collectionSelect+`
		WHERE c.user_id = ?
		ORDER BY c.position ASC, c.created_at DESC, c.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing collections for %s: %w", userID, err)
	}
	defer rows.Close()

	collections := []model.Collection{}
	for rows.Next() {
		var c model.Collection
		if err := scanCollection(rows, &c); err != nil {
			return nil, fmt.Errorf("sqlite: scanning collection row: %w", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating collection rows: %w", err)
	}
	return collections, nil
}

func (db *DB) GetCollection(ctx context.Context, id string) (*model.Collection, error) {
	var c model.Collection
	err := scanCollection(db.conn.QueryRowContext(ctx, collectionSelect+` WHERE c.id = ?`, id), &c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("collection", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting collection %s: %w", id, err)
	}
	return &c, nil
}

// CreateCollection appends a collection after the owner's existing ones.
// The position is computed inside the INSERT so two concurrent creates
// cannot read the same MAX.
func (db *DB) CreateCollection(ctx context.Context, c *model.Collection) error {
	if c.ID == "" {
		c.ID = xid.New().String()
	}
	c.CreatedAt = time.Now().UTC()
	c.Count = 0

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO collections (id, user_id, title, description, is_public, position, created_at)
		 VALUES (?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM collections WHERE user_id = ?),
			?)
		 RETURNING position`,
		c.ID,
		c.UserID,
		c.Title,
		c.Description,
		c.IsPublic,
		c.UserID,
		c.CreatedAt,
	).Scan(&c.Position)
	if err != nil {
		return fmt.Errorf("sqlite: creating collection: %w", err)
	}
	return nil
}

// UpdateCollection changes title and/or description. COALESCE(NULL, col)
// keeps the stored value for fields the caller left nil.
func (db *DB) UpdateCollection(ctx context.Context, ownerID, id string, upd model.CollectionUpdate) (*model.Collection, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE collections
		 SET title = COALESCE(?, title), description = COALESCE(?, description)
		 WHERE id = ? AND user_id = ?`,
		upd.Title,
		upd.Description,
		id,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating collection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("collection", id)
	}
	return db.GetCollection(ctx, id)
}

// DeleteCollection removes a collection; ON DELETE CASCADE removes its
// memberships in the same statement.
func (db *DB) DeleteCollection(ctx context.Context, ownerID, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM collections WHERE id = ? AND user_id = ?`, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting collection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("collection", id)
	}
	return nil
}

// ReorderCollections persists position = index for each row as one upsert.
//
// A single statement is atomic, so a failed reorder leaves every position
// as it was. The conflict branch touches only position and only rows the
// owner holds; user_id is forced to the owner for any inserted row.
func (db *DB) ReorderCollections(ctx context.Context, ownerID string, ordered []model.Collection) error {
	if len(ordered) == 0 {
		return nil
	}

	now := time.Now().UTC()
	args := make([]any, 0, len(ordered)*7)
	for i, c := range ordered {
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		args = append(args, c.ID, ownerID, c.Title, c.Description, c.IsPublic, i, created.UTC())
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO collections (id, user_id, title, description, is_public, position, created_at)
		 VALUES `+placeholders(len(ordered), 7)+`
		 ON CONFLICT(id) DO UPDATE SET position = excluded.position
		 WHERE collections.user_id = excluded.user_id`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: reordering collections for %s: %w", ownerID, err)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(s scanner, c *model.Collection) error {
	return s.Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&c.Description,
		&c.IsPublic,
		&c.Position,
		&c.CreatedAt,
		&c.Count,
	)
}
