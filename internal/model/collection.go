package model

import "time"

// AllCollectionID identifies the virtual "All Public Repos" collection.
// It is never persisted; the profile page synthesizes it per render.
const AllCollectionID = "all"

// AllCollectionTitle is the sidebar label of the virtual collection.
const AllCollectionTitle = "All Public Repos"

// Collection is a named, ordered group of repositories owned by one profile.
//
// Position orders a single owner's collections (ascending); ties fall back
// to CreatedAt descending. Count is not a column: list queries fill it with
// the live number of member repositories.
type Collection struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"isPublic"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"createdAt"`
	Count       int       `json:"count"`
}

// CollectionUpdate carries the mutable fields of a collection.
// A nil field is left unchanged.
type CollectionUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// CollectionRepo is the membership of one GitHub repository in a collection,
// with the owner's free-text note. FullName ("owner/name") appears at most
// once per collection.
type CollectionRepo struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collectionId"`
	Owner        string    `json:"owner"`
	RepoName     string    `json:"repoName"`
	FullName     string    `json:"fullName"`
	Description  string    `json:"description"`
	Note         string    `json:"note"`
	Position     int       `json:"position"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RepoPage is one page of a collection's memberships plus the total count
// across all pages.
type RepoPage struct {
	Repos []CollectionRepo `json:"repos"`
	Total int              `json:"total"`
}
