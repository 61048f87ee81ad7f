package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/model"
	"github.com/sakif/facet/internal/repository"
)

// DefaultProfilePageSize is used when NewProfileService gets a page size
// outside 1..100.
const DefaultProfilePageSize = 10

// allReposFetchLimit is how many of the most recently updated GitHub
// repositories the "All Public Repos" bucket considers for a local profile.
// GitHub cannot filter out claimed repositories, so they are filtered and
// paginated in memory.
const allReposFetchLimit = 100

// ProfileStore is the persistence the public profile page reads.
type ProfileStore interface {
	FindProfileByUsername(ctx context.Context, username string) (*model.Profile, bool, error)
	ListCollections(ctx context.Context, userID string) ([]model.Collection, error)
	ClaimedFullNames(ctx context.Context, userID string) ([]string, error)
	ListCollectionRepos(ctx context.Context, collectionID string, opts repository.ListOptions) (*model.RepoPage, error)
}

// ProfileRequest is a visit to /{username}?collection=&page=.
type ProfileRequest struct {
	Username     string
	CollectionID string
	Page         int
}

// ProfilePage is everything the public profile template renders.
type ProfilePage struct {
	Username    string
	DisplayName string
	AvatarURL   string
	Bio         string
	GitHubURL   string

	// OnFacet is false when the visited user has never signed in here and
	// the page is a live read of GitHub.
	OnFacet bool

	Collections []model.DisplayCollection
	ActiveID    string
	ActiveTitle string
	Repos       []model.DisplayRepo
	Page        int
	PerPage     int
	Total       int
	HasPrev     bool
	HasNext     bool
}

// ProfileService resolves the public profile page.
type ProfileService struct {
	store    ProfileStore
	gh       GitHubClient
	pageSize int
	logger   *slog.Logger
}

func NewProfileService(store ProfileStore, gh GitHubClient, pageSize int, logger *slog.Logger) *ProfileService {
	if pageSize < 1 || pageSize > 100 {
		pageSize = DefaultProfilePageSize
	}
	return &ProfileService{store: store, gh: gh, pageSize: pageSize, logger: logger}
}

// Resolve builds the profile page for a visited username.
//
// RESOLUTION STEPS:
//  1. GitHub must know the username, else the page is not found.
//  2. A local profile decides between curated collections and the raw
//     GitHub list.
//  3. With a local profile, collections and claimed names are read
//     concurrently and merged with the virtual "All Public Repos" bucket.
//  4. The active collection is the requested one, else the first listed.
//  5. The repo page comes from GitHub ("all") or from the store.
//
// Errors match apperror.ErrNotFound for an unknown username and
// apperror.ErrUpstream when GitHub fails otherwise.
func (s *ProfileService) Resolve(ctx context.Context, req ProfileRequest) (*ProfilePage, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, apperror.NotFound("github user", username)
	}

	ghUser, err := s.gh.GetUser(ctx, username)
	if err != nil {
		return nil, providerError(err, username)
	}

	profile, found, err := s.store.FindProfileByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/profile: finding profile %s: %w", username, err)
	}

	var (
		collections []model.Collection
		claimed     []string
	)
	if found {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			cols, err := s.store.ListCollections(gctx, profile.ID)
			if err != nil {
				return fmt.Errorf("service/profile: listing collections of %s: %w", profile.ID, err)
			}
			collections = publicOnly(cols)
			return nil
		})
		g.Go(func() error {
			names, err := s.store.ClaimedFullNames(gctx, profile.ID)
			if err != nil {
				return fmt.Errorf("service/profile: listing claimed repos of %s: %w", profile.ID, err)
			}
			claimed = names
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	page := &ProfilePage{
		Username:    ghUser.Login,
		DisplayName: firstNonEmpty(ghUser.Name, ghUser.Login),
		AvatarURL:   ghUser.AvatarURL,
		Bio:         ghUser.Bio,
		GitHubURL:   firstNonEmpty(ghUser.HTMLURL, "https://github.com/"+ghUser.Login),
		OnFacet:     found,
		Collections: MergeCollections(collections, claimed, ghUser.PublicRepos),
		Page:        min(max(req.Page, 1), repository.MaxPage),
		PerPage:     s.pageSize,
	}
	if found {
		page.DisplayName = firstNonEmpty(profile.DisplayName, page.DisplayName)
		page.AvatarURL = firstNonEmpty(profile.AvatarURL, page.AvatarURL)
		page.Bio = firstNonEmpty(profile.Bio, page.Bio)
	}

	page.ActiveID = req.CollectionID
	if page.ActiveID == "" {
		// the merged list always ends with the virtual bucket
		page.ActiveID = page.Collections[0].ID
	}

	switch {
	case page.ActiveID == model.AllCollectionID && found:
		err = s.claimedFilteredRepos(ctx, page, ghUser.Login, claimed)
	case page.ActiveID == model.AllCollectionID:
		err = s.providerRepos(ctx, page, ghUser.Login, ghUser.PublicRepos)
	default:
		err = s.collectionRepos(ctx, page)
	}
	if err != nil {
		return nil, err
	}

	for _, c := range page.Collections {
		if c.ID == page.ActiveID {
			page.ActiveTitle = c.Title
		}
	}
	page.HasPrev = page.Page > 1
	page.HasNext = page.Page*page.PerPage < page.Total
	return page, nil
}

// claimedFilteredRepos fills the "all" bucket of a local profile: recent
// GitHub repositories minus the claimed ones, paginated in memory.
func (s *ProfileService) claimedFilteredRepos(ctx context.Context, page *ProfilePage, login string, claimed []string) error {
	repos, err := s.gh.ListRepos(ctx, login, 1, allReposFetchLimit)
	if err != nil {
		return providerError(err, login)
	}

	skip := make(map[string]bool, len(claimed))
	for _, name := range claimed {
		skip[strings.ToLower(name)] = true
	}
	var filtered []model.DisplayRepo
	for _, r := range repos {
		if !skip[strings.ToLower(r.FullName)] {
			filtered = append(filtered, displayRepoFromGitHub(r))
		}
	}

	page.Total = len(filtered)
	start := min((page.Page-1)*page.PerPage, len(filtered))
	end := min(start+page.PerPage, len(filtered))
	page.Repos = filtered[start:end]
	return nil
}

// providerRepos fills the "all" bucket of a user without a local profile
// with one GitHub page; the total is the public repository count.
func (s *ProfileService) providerRepos(ctx context.Context, page *ProfilePage, login string, publicRepos int) error {
	repos, err := s.gh.ListRepos(ctx, login, page.Page, page.PerPage)
	if err != nil {
		return providerError(err, login)
	}
	page.Total = publicRepos
	page.Repos = make([]model.DisplayRepo, 0, len(repos))
	for _, r := range repos {
		page.Repos = append(page.Repos, displayRepoFromGitHub(r))
	}
	return nil
}

// collectionRepos reads a stored page. Only collections shown in the
// visited profile's sidebar are read; any other id renders the empty state.
func (s *ProfileService) collectionRepos(ctx context.Context, page *ProfilePage) error {
	listed := false
	for _, c := range page.Collections {
		if c.ID == page.ActiveID && !c.Virtual {
			listed = true
		}
	}
	if !listed {
		s.logger.Debug("collection not on profile", slog.String("collectionID", page.ActiveID))
		return nil
	}

	rp, err := s.store.ListCollectionRepos(ctx, page.ActiveID, repository.PageOptions(page.Page, page.PerPage))
	if err != nil {
		return fmt.Errorf("service/profile: listing repos of %s: %w", page.ActiveID, err)
	}
	page.Total = rp.Total
	page.Repos = make([]model.DisplayRepo, 0, len(rp.Repos))
	for _, r := range rp.Repos {
		page.Repos = append(page.Repos, model.DisplayRepoFromMembership(r))
	}
	return nil
}

// MergeCollections builds the sidebar: the local collections in order,
// followed by the virtual "All Public Repos" bucket whose count is the
// public repository count minus the distinct claimed names, never below 0.
func MergeCollections(local []model.Collection, claimed []string, publicRepos int) []model.DisplayCollection {
	distinct := make(map[string]struct{}, len(claimed))
	for _, name := range claimed {
		distinct[strings.ToLower(name)] = struct{}{}
	}

	out := make([]model.DisplayCollection, 0, len(local)+1)
	for _, c := range local {
		out = append(out, model.DisplayCollection{
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			Count:       c.Count,
		})
	}
	return append(out, model.DisplayCollection{
		ID:      model.AllCollectionID,
		Title:   model.AllCollectionTitle,
		Count:   max(0, publicRepos-len(distinct)),
		Virtual: true,
	})
}

func publicOnly(cols []model.Collection) []model.Collection {
	out := cols[:0:0]
	for _, c := range cols {
		if c.IsPublic {
			out = append(out, c)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
