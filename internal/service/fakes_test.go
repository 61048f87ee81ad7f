package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/github"
	"github.com/sakif/facet/internal/model"
	"github.com/sakif/facet/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================

// fakeStore is an in-memory repository.Store. It follows the same ordering
// and ownership rules as the SQL stores, so service tests exercise real
// behavior without a database.
type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	cols     map[string]*model.Collection
	repos    map[string]*model.CollectionRepo
	nextID   int
	clock    time.Time

	// set to a non-nil error to simulate a database failure
	upsertErr      error
	reorderErr     error
	listErr        error
	claimedErr     error
	repoListCalled int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]*model.Profile),
		cols:     make(map[string]*model.Collection),
		repos:    make(map[string]*model.CollectionRepo),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) UpsertProfile(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, other := range f.profiles {
		if other.ID != p.ID && strings.EqualFold(other.GitHubUsername, p.GitHubUsername) {
			return apperror.Conflict("profile", p.GitHubUsername)
		}
	}
	stored := *p
	stored.UpdatedAt = f.tick()
	if old, ok := f.profiles[p.ID]; ok {
		stored.CreatedAt = old.CreatedAt
	} else {
		stored.CreatedAt = stored.UpdatedAt
	}
	f.profiles[p.ID] = &stored
	*p = stored
	return nil
}

func (f *fakeStore) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, apperror.NotFound("profile", id)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) FindProfileByUsername(_ context.Context, username string) (*model.Profile, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if strings.EqualFold(p.GitHubUsername, username) {
			cp := *p
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeStore) ListUsernames(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, p := range f.profiles {
		names = append(names, p.GitHubUsername)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeStore) count(collectionID string) int {
	n := 0
	for _, r := range f.repos {
		if r.CollectionID == collectionID {
			n++
		}
	}
	return n
}

func (f *fakeStore) ListCollections(_ context.Context, userID string) ([]model.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Collection{}
	for _, c := range f.cols {
		if c.UserID == userID {
			cp := *c
			cp.Count = f.count(c.ID)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeStore) GetCollection(_ context.Context, id string) (*model.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cols[id]
	if !ok {
		return nil, apperror.NotFound("collection", id)
	}
	cp := *c
	cp.Count = f.count(id)
	return &cp, nil
}

func (f *fakeStore) CreateCollection(_ context.Context, c *model.Collection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = f.id("c")
	c.CreatedAt = f.tick()
	c.Position = 0
	for _, other := range f.cols {
		if other.UserID == c.UserID && other.Position >= c.Position {
			c.Position = other.Position + 1
		}
	}
	stored := *c
	f.cols[c.ID] = &stored
	return nil
}

func (f *fakeStore) UpdateCollection(_ context.Context, ownerID, id string, upd model.CollectionUpdate) (*model.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cols[id]
	if !ok || c.UserID != ownerID {
		return nil, apperror.NotFound("collection", id)
	}
	if upd.Title != nil {
		c.Title = *upd.Title
	}
	if upd.Description != nil {
		c.Description = *upd.Description
	}
	cp := *c
	cp.Count = f.count(id)
	return &cp, nil
}

func (f *fakeStore) DeleteCollection(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cols[id]
	if !ok || c.UserID != ownerID {
		return apperror.NotFound("collection", id)
	}
	delete(f.cols, id)
	for rid, r := range f.repos {
		if r.CollectionID == id {
			delete(f.repos, rid)
		}
	}
	return nil
}

func (f *fakeStore) ReorderCollections(_ context.Context, ownerID string, ordered []model.Collection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reorderErr != nil {
		return f.reorderErr
	}
	for i, c := range ordered {
		if stored, ok := f.cols[c.ID]; ok && stored.UserID == ownerID {
			stored.Position = i
		}
	}
	return nil
}

func (f *fakeStore) ListCollectionRepos(_ context.Context, collectionID string, opts repository.ListOptions) (*model.RepoPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repoListCalled++
	opts = opts.Normalize()
	var all []model.CollectionRepo
	for _, r := range f.repos {
		if r.CollectionID == collectionID {
			all = append(all, *r)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Position != all[j].Position {
			return all[i].Position < all[j].Position
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	page := &model.RepoPage{Repos: []model.CollectionRepo{}, Total: len(all)}
	if opts.Offset < len(all) {
		end := min(opts.Offset+opts.Limit, len(all))
		page.Repos = all[opts.Offset:end]
	}
	return page, nil
}

func (f *fakeStore) ClaimedFullNames(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimedErr != nil {
		return nil, f.claimedErr
	}
	seen := map[string]bool{}
	var out []string
	for _, r := range f.repos {
		c := f.cols[r.CollectionID]
		if c != nil && c.UserID == userID && !seen[strings.ToLower(r.FullName)] {
			seen[strings.ToLower(r.FullName)] = true
			out = append(out, r.FullName)
		}
	}
	return out, nil
}

func (f *fakeStore) AddCollectionRepo(_ context.Context, ownerID string, r *model.CollectionRepo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cols[r.CollectionID]
	if !ok || c.UserID != ownerID {
		return apperror.NotFound("collection", r.CollectionID)
	}
	r.Position = 0
	for _, other := range f.repos {
		if other.CollectionID != r.CollectionID {
			continue
		}
		if strings.EqualFold(other.FullName, r.FullName) {
			return apperror.Duplicate("repository already in collection")
		}
		if other.Position >= r.Position {
			r.Position = other.Position + 1
		}
	}
	r.ID = f.id("m")
	r.CreatedAt = f.tick()
	stored := *r
	f.repos[r.ID] = &stored
	return nil
}

func (f *fakeStore) ownedRepo(ownerID, id string) (*model.CollectionRepo, bool) {
	r, ok := f.repos[id]
	if !ok {
		return nil, false
	}
	c := f.cols[r.CollectionID]
	return r, c != nil && c.UserID == ownerID
}

func (f *fakeStore) RemoveCollectionRepo(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ownedRepo(ownerID, id); !ok {
		return apperror.NotFound("collection repo", id)
	}
	delete(f.repos, id)
	return nil
}

func (f *fakeStore) UpdateRepoNote(_ context.Context, ownerID, id, note string) (*model.CollectionRepo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.ownedRepo(ownerID, id)
	if !ok {
		return nil, apperror.NotFound("collection repo", id)
	}
	r.Note = note
	cp := *r
	return &cp, nil
}

func (f *fakeStore) ReorderCollectionRepos(_ context.Context, ownerID string, ordered []model.CollectionRepo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reorderErr != nil {
		return f.reorderErr
	}
	for i, r := range ordered {
		if stored, ok := f.ownedRepo(ownerID, r.ID); ok {
			stored.Position = i
		}
	}
	return nil
}

func (f *fakeStore) Close() error { return nil }

var _ repository.Store = (*fakeStore)(nil)

// =========================================================================
// FAKE GITHUB
// =========================================================================

// fakeGitHub serves users and repositories from memory. Repos are returned
// in slice order, which stands in for "most recently updated first".
type fakeGitHub struct {
	users map[string]*github.User
	repos map[string][]github.Repo
	err   error

	// calls records "login page perPage" for every ListRepos call.
	calls []string
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		users: make(map[string]*github.User),
		repos: make(map[string][]github.Repo),
	}
}

// addUser registers login with n public repositories named repo1..repoN.
func (g *fakeGitHub) addUser(login string, n int) {
	g.users[strings.ToLower(login)] = &github.User{
		ID:          int64(len(g.users) + 1),
		Login:       login,
		Name:        strings.ToUpper(login[:1]) + login[1:],
		AvatarURL:   "https://avatars.example/" + login,
		PublicRepos: n,
	}
	repos := make([]github.Repo, n)
	for i := range repos {
		name := fmt.Sprintf("repo%d", i+1)
		repos[i] = github.Repo{
			ID:       int64(i + 1),
			Name:     name,
			FullName: login + "/" + name,
			HTMLURL:  "https://github.com/" + login + "/" + name,
		}
		repos[i].Owner.Login = login
	}
	g.repos[strings.ToLower(login)] = repos
}

func (g *fakeGitHub) GetUser(_ context.Context, login string) (*github.User, error) {
	if g.err != nil {
		return nil, g.err
	}
	u, ok := g.users[strings.ToLower(login)]
	if !ok {
		return nil, &github.StatusError{StatusCode: 404, URL: "/users/" + login}
	}
	return u, nil
}

func (g *fakeGitHub) ListRepos(_ context.Context, login string, page, perPage int) ([]github.Repo, error) {
	g.calls = append(g.calls, fmt.Sprintf("%s %d %d", login, page, perPage))
	if g.err != nil {
		return nil, g.err
	}
	all, ok := g.repos[strings.ToLower(login)]
	if !ok {
		return nil, &github.StatusError{StatusCode: 404, URL: "/users/" + login + "/repos"}
	}
	start := min((page-1)*perPage, len(all))
	end := min(start+perPage, len(all))
	return all[start:end], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
