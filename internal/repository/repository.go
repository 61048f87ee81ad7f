// Package repository declares the persistence contracts of the application.
//
// The service layer depends only on these interfaces. Two implementations
// exist: repository/sqlite (embedded, the default) and repository/postgres
// (selected when DATABASE_URL is configured).
//
// OWNERSHIP:
// Every mutation takes the acting owner's id and scopes its SQL by it. A
// mutation that matches no row owned by that actor returns
// apperror.ErrNotFound, the same as a missing row, so callers cannot probe
// for other users' ids.
package repository

import (
	"context"

	"github.com/sakif/facet/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Page size bounds applied by every implementation.
const (
	DefaultListLimit = 20
	MaxListLimit     = 1000

	// MaxPage bounds 1-based page numbers taken from query strings, so
	// page*limit stays far from overflowing an int.
	MaxPage = 100_000
)

// PageOptions converts a 1-based page and page size into normalized
// options. Out-of-range pages are clamped to 1..MaxPage.
func PageOptions(page, perPage int) ListOptions {
	page = min(max(page, 1), MaxPage)
	o := ListOptions{Limit: perPage}.Normalize()
	o.Offset = (page - 1) * o.Limit
	return o
}

// Normalize clamps the options to the supported range.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

type ProfileRepository interface {
	// UpsertProfile inserts or updates the profile keyed by p.ID.
	UpsertProfile(ctx context.Context, p *model.Profile) error
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	// FindProfileByUsername matches GitHubUsername case-insensitively.
	// A missing profile is reported as found=false, not as an error.
	FindProfileByUsername(ctx context.Context, username string) (p *model.Profile, found bool, err error)
	// ListUsernames returns every profile's GitHub username, sorted.
	ListUsernames(ctx context.Context) ([]string, error)
}

type CollectionRepository interface {
	// ListCollections orders by position ascending, then creation time
	// descending, and fills Count.
	ListCollections(ctx context.Context, userID string) ([]model.Collection, error)
	GetCollection(ctx context.Context, id string) (*model.Collection, error)
	CreateCollection(ctx context.Context, c *model.Collection) error
	UpdateCollection(ctx context.Context, ownerID, id string, upd model.CollectionUpdate) (*model.Collection, error)
	DeleteCollection(ctx context.Context, ownerID, id string) error
	// ReorderCollections writes position = index for every row in one
	// statement. Rows must be complete: a row whose id does not exist yet is
	// inserted.
	ReorderCollections(ctx context.Context, ownerID string, ordered []model.Collection) error
}

type MembershipRepository interface {
	ListCollectionRepos(ctx context.Context, collectionID string, opts ListOptions) (*model.RepoPage, error)
	// ClaimedFullNames returns the distinct full names placed in any of the
	// user's collections.
	ClaimedFullNames(ctx context.Context, userID string) ([]string, error)
	// AddCollectionRepo returns an apperror.ErrDuplicate error when the full
	// name is already in the collection.
	AddCollectionRepo(ctx context.Context, ownerID string, r *model.CollectionRepo) error
	RemoveCollectionRepo(ctx context.Context, ownerID, id string) error
	UpdateRepoNote(ctx context.Context, ownerID, id, note string) (*model.CollectionRepo, error)
	ReorderCollectionRepos(ctx context.Context, ownerID string, ordered []model.CollectionRepo) error
}

// Store is everything the application persists.
type Store interface {
	ProfileRepository
	CollectionRepository
	MembershipRepository
	Close() error
}
