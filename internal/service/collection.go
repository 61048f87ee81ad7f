// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces ownership, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// THE ACTOR:
// Every owner operation takes the acting user's id as an explicit argument.
// Handlers read it from the session the auth middleware placed in the request
// context; services never look at requests or cookies. The id becomes the
// owner of created rows and the scope of every mutation, so a client-supplied
// owner id is never trusted.
//
// DEPENDENCY INJECTION:
// Services take repository interfaces and a GitHubClient interface, never
// *sqlite.DB or *github.Client, so tests run against in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/github"
	"github.com/sakif/facet/internal/model"
	"github.com/sakif/facet/internal/repository"
)

// Validation and paging constants.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MaxNoteLength        = 1000

	// DashboardPageSize is how many memberships the dashboard shows and
	// lets the owner drag.
	DashboardPageSize = 100

	// DefaultCandidatesPerPage is the add-repository dialog's page size.
	DefaultCandidatesPerPage = 50

	// SearchCandidatesPerPage is the page size when browsing another
	// user's repositories.
	SearchCandidatesPerPage = 30

	// maxExistingForCandidates bounds the membership read that marks
	// candidates as already added.
	maxExistingForCandidates = 1000
)

// GitHubClient is the part of the GitHub API the services read.
type GitHubClient interface {
	GetUser(ctx context.Context, login string) (*github.User, error)
	ListRepos(ctx context.Context, login string, page, perPage int) ([]github.Repo, error)
}

// CollectionStore is the persistence the owner operations need.
type CollectionStore interface {
	repository.CollectionRepository
	repository.MembershipRepository
}

// ReorderError is returned when a reorder could not be applied. Current is
// the order actually persisted, re-read after the failure, so the caller can
// overwrite its optimistic state. Current is nil when the re-read failed too.
type ReorderError[T any] struct {
	Current []T
	Err     error
}

func (e *ReorderError[T]) Error() string {
	return "reorder failed: " + e.Err.Error()
}

func (e *ReorderError[T]) Unwrap() error {
	return e.Err
}

// AddRepoInput is a repository picked in the add dialog.
type AddRepoInput struct {
	FullName    string `json:"fullName"`
	Description string `json:"description"`
}

// CollectionService implements the dashboard's owner operations.
type CollectionService struct {
	store  CollectionStore
	gh     GitHubClient
	logger *slog.Logger
}

func NewCollectionService(store CollectionStore, gh GitHubClient, logger *slog.Logger) *CollectionService {
	return &CollectionService{store: store, gh: gh, logger: logger}
}

// List returns the actor's collections in display order with live counts.
func (s *CollectionService) List(ctx context.Context, actor string) ([]model.Collection, error) {
	if actor == "" {
		return nil, apperror.Unauthorized("sign in required")
	}
	cols, err := s.store.ListCollections(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("service/collection: listing collections of %s: %w", actor, err)
	}
	return cols, nil
}

// Get returns one of the actor's collections. Another user's collection is
// reported as not found.
func (s *CollectionService) Get(ctx context.Context, actor, id string) (*model.Collection, error) {
	if actor == "" {
		return nil, apperror.Unauthorized("sign in required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "collection ID is required")
	}

	c, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != actor {
		return nil, apperror.NotFound("collection", id)
	}
	return c, nil
}

// Create adds a public collection at the end of the actor's list.
func (s *CollectionService) Create(ctx context.Context, actor, title, description string) (*model.Collection, error) {
	if actor == "" {
		return nil, apperror.Unauthorized("sign in required")
	}
	title, description, err := validateCollection(title, description)
	if err != nil {
		return nil, err
	}

	c := &model.Collection{
		UserID:      actor,
		Title:       title,
		Description: description,
		IsPublic:    true,
	}
	if err := s.store.CreateCollection(ctx, c); err != nil {
		s.logger.Error("failed to create collection",
			slog.String("userID", actor),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/collection: creating collection: %w", err)
	}

	s.logger.Info("collection created",
		slog.String("id", c.ID),
		slog.String("userID", actor),
	)
	return c, nil
}

// Update renames a collection and/or changes its description.
func (s *CollectionService) Update(ctx context.Context, actor, id string, upd model.CollectionUpdate) (*model.Collection, error) {
	if actor == "" {
		return nil, apperror.Unauthorized("sign in required")
	}
	if upd.Title == nil && upd.Description == nil {
		return nil, apperror.ValidationFailed("title", "nothing to update")
	}
	if upd.Title != nil {
		t := strings.TrimSpace(*upd.Title)
		if err := checkTitle(t); err != nil {
			return nil, err
		}
		upd.Title = &t
	}
	if upd.Description != nil {
		d := strings.TrimSpace(*upd.Description)
		if utf8.RuneCountInString(d) > MaxDescriptionLength {
			return nil, apperror.ValidationFailed("description",
				fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
		}
		upd.Description = &d
	}

	c, err := s.store.UpdateCollection(ctx, actor, id, upd)
	if err != nil {
		return nil, err
	}
	s.logger.Info("collection updated", slog.String("id", id))
	return c, nil
}

// Delete removes a collection and its memberships.
func (s *CollectionService) Delete(ctx context.Context, actor, id string) error {
	if actor == "" {
		return apperror.Unauthorized("sign in required")
	}
	if err := s.store.DeleteCollection(ctx, actor, id); err != nil {
		return err
	}
	s.logger.Info("collection deleted", slog.String("id", id))
	return nil
}

// ReorderCollections persists ids as the actor's new collection order and
// returns the order read back from the store.
//
// RECONCILIATION:
// The dashboard applies a drag immediately and calls this afterwards. Any
// failure, including a stale id list after a change in another tab, comes
// back as a *ReorderError carrying the persisted order so the client can
// replace what it shows.
func (s *CollectionService) ReorderCollections(ctx context.Context, actor string, ids []string) ([]model.Collection, error) {
	current, err := s.List(ctx, actor)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Collection, len(current))
	for _, c := range current {
		byID[c.ID] = c
	}
	if err := checkPermutation(ids, len(current), func(id string) bool { _, ok := byID[id]; return ok }); err != nil {
		return nil, &ReorderError[model.Collection]{Current: current, Err: err}
	}

	ordered := make([]model.Collection, len(ids))
	for i, id := range ids {
		ordered[i] = byID[id]
	}
	if err := s.store.ReorderCollections(ctx, actor, ordered); err != nil {
		s.logger.Error("failed to reorder collections",
			slog.String("userID", actor),
			slog.String("error", err.Error()),
		)
		persisted, _ := s.store.ListCollections(ctx, actor)
		return nil, &ReorderError[model.Collection]{Current: persisted, Err: err}
	}

	return s.List(ctx, actor)
}

// ListRepos returns one page of an owned collection's memberships.
func (s *CollectionService) ListRepos(ctx context.Context, actor, collectionID string, page, perPage int) (*model.RepoPage, error) {
	if _, err := s.Get(ctx, actor, collectionID); err != nil {
		return nil, err
	}
	if perPage < 1 {
		perPage = DashboardPageSize
	}

	rp, err := s.store.ListCollectionRepos(ctx, collectionID, repository.PageOptions(page, perPage))
	if err != nil {
		return nil, fmt.Errorf("service/collection: listing repos of %s: %w", collectionID, err)
	}
	return rp, nil
}

// AddRepo appends a GitHub repository to an owned collection. A repository
// already in the collection yields an apperror.ErrDuplicate error.
func (s *CollectionService) AddRepo(ctx context.Context, actor, collectionID string, in AddRepoInput) (*model.CollectionRepo, error) {
	if actor == "" {
		return nil, apperror.Unauthorized("sign in required")
	}
	owner, name, err := ParseFullName(in.FullName)
	if err != nil {
		return nil, err
	}

	r := &model.CollectionRepo{
		CollectionID: collectionID,
		Owner:        owner,
		RepoName:     name,
		FullName:     owner + "/" + name,
		Description:  strings.TrimSpace(in.Description),
	}
	if err := s.store.AddCollectionRepo(ctx, actor, r); err != nil {
		if errors.Is(err, apperror.ErrDuplicate) {
			return nil, apperror.Duplicate(fmt.Sprintf("%s is already in this collection", r.FullName))
		}
		return nil, err
	}

	s.logger.Info("repo added to collection",
		slog.String("collectionID", collectionID),
		slog.String("fullName", r.FullName),
	)
	return r, nil
}

// RemoveRepo deletes a membership. Remaining positions are left as they are.
func (s *CollectionService) RemoveRepo(ctx context.Context, actor, id string) error {
	if actor == "" {
		return apperror.Unauthorized("sign in required")
	}
	if err := s.store.RemoveCollectionRepo(ctx, actor, id); err != nil {
		return err
	}
	s.logger.Info("repo removed from collection", slog.String("id", id))
	return nil
}

// UpdateNote replaces a membership's note. An empty note clears it.
func (s *CollectionService) UpdateNote(ctx context.Context, actor, id, note string) (*model.CollectionRepo, error) {
	if actor == "" {
		return nil, apperror.Unauthorized("sign in required")
	}
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return nil, apperror.ValidationFailed("note",
			fmt.Sprintf("note must be %d characters or less", MaxNoteLength))
	}
	return s.store.UpdateRepoNote(ctx, actor, id, note)
}

// ReorderRepos persists ids as the new membership order of an owned
// collection. Failures carry the persisted order, as for
// ReorderCollections.
//
// The dashboard shows only the first DashboardPageSize memberships, so ids
// may reorder a leading prefix of the stored order. Memberships past the
// prefix keep their relative order after it.
func (s *CollectionService) ReorderRepos(ctx context.Context, actor, collectionID string, ids []string) ([]model.CollectionRepo, error) {
	current, err := s.allRepos(ctx, actor, collectionID)
	if err != nil {
		return nil, err
	}

	shown := current
	if len(ids) > 0 && len(ids) < len(current) {
		shown = current[:len(ids)]
	}
	byID := make(map[string]model.CollectionRepo, len(shown))
	for _, r := range shown {
		byID[r.ID] = r
	}
	if err := checkPermutation(ids, len(shown), func(id string) bool { _, ok := byID[id]; return ok }); err != nil {
		return nil, &ReorderError[model.CollectionRepo]{Current: current, Err: err}
	}

	ordered := make([]model.CollectionRepo, 0, len(current))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}
	ordered = append(ordered, current[len(shown):]...)
	if err := s.store.ReorderCollectionRepos(ctx, actor, ordered); err != nil {
		s.logger.Error("failed to reorder repos",
			slog.String("collectionID", collectionID),
			slog.String("error", err.Error()),
		)
		persisted, _ := s.allRepos(ctx, actor, collectionID)
		return nil, &ReorderError[model.CollectionRepo]{Current: persisted, Err: err}
	}

	return s.allRepos(ctx, actor, collectionID)
}

func (s *CollectionService) allRepos(ctx context.Context, actor, collectionID string) ([]model.CollectionRepo, error) {
	rp, err := s.ListRepos(ctx, actor, collectionID, 1, repository.MaxListLimit)
	if err != nil {
		return nil, err
	}
	return rp.Repos, nil
}

// Candidates lists one page of a GitHub user's repositories for the add
// dialog, each flagged Added when its full name is already in the
// collection (compared case-insensitively).
func (s *CollectionService) Candidates(ctx context.Context, actor, collectionID, username string, page, perPage int) ([]model.DisplayRepo, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	if perPage < 1 {
		perPage = DefaultCandidatesPerPage
	}

	existing, err := s.ListRepos(ctx, actor, collectionID, 1, maxExistingForCandidates)
	if err != nil {
		return nil, err
	}
	added := make(map[string]bool, len(existing.Repos))
	for _, r := range existing.Repos {
		added[strings.ToLower(r.FullName)] = true
	}

	repos, err := s.gh.ListRepos(ctx, username, page, perPage)
	if err != nil {
		return nil, providerError(err, username)
	}

	out := make([]model.DisplayRepo, 0, len(repos))
	for _, r := range repos {
		d := displayRepoFromGitHub(r)
		d.Added = added[strings.ToLower(r.FullName)]
		out = append(out, d)
	}
	return out, nil
}

// ParseFullName splits "owner/name" and rejects anything else.
func ParseFullName(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") ||
		strings.ContainsAny(owner+name, " \t\n") {
		return "", "", apperror.ValidationFailed("fullName", "repository must be in owner/name form")
	}
	return owner, name, nil
}

func validateCollection(title, description string) (string, string, error) {
	title = strings.TrimSpace(title)
	if err := checkTitle(title); err != nil {
		return "", "", err
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", "", apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	return title, description, nil
}

func checkTitle(title string) error {
	if title == "" {
		return apperror.ValidationFailed("title", "collection title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("collection title must be %d characters or less", MaxTitleLength))
	}
	return nil
}

// checkPermutation reports whether ids names every known row exactly once.
func checkPermutation(ids []string, n int, known func(string) bool) error {
	if len(ids) != n {
		return apperror.ValidationFailed("ids",
			fmt.Sprintf("order lists %d items, expected %d", len(ids), n))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !known(id) {
			return apperror.ValidationFailed("ids", fmt.Sprintf("unknown id %s", id))
		}
		if seen[id] {
			return apperror.ValidationFailed("ids", fmt.Sprintf("id %s listed twice", id))
		}
		seen[id] = true
	}
	return nil
}

// providerError maps a GitHub failure to the application taxonomy: an
// unknown login is not found, anything else is an upstream failure.
func providerError(err error, login string) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.NotFound("github user", login)
	}
	return apperror.Upstream("failed to fetch from GitHub", err)
}

func displayRepoFromGitHub(r github.Repo) model.DisplayRepo {
	owner, name := r.Owner.Login, r.Name
	if o, n, ok := strings.Cut(r.FullName, "/"); ok {
		owner, name = o, n
	}
	u := r.HTMLURL
	if u == "" {
		u = "https://github.com/" + r.FullName
	}
	return model.DisplayRepo{
		Owner:       owner,
		Name:        name,
		FullName:    r.FullName,
		Description: r.Description,
		URL:         u,
		Language:    r.Language,
		Stars:       r.Stars,
	}
}
