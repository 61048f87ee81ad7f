package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/facet/internal/auth"
	"github.com/sakif/facet/internal/cache"
	"github.com/sakif/facet/internal/github"
	"github.com/sakif/facet/internal/handler"
	"github.com/sakif/facet/internal/model"
	sqliteRepo "github.com/sakif/facet/internal/repository/sqlite"
	"github.com/sakif/facet/internal/service"
	"github.com/sakif/facet/internal/view"
	"github.com/sakif/facet/web"
)

const testSecret = "test-secret-at-least-16-chars"

// =========================================================================
// FAKE GITHUB
// =========================================================================

// fakeGitHub serves /users/{login} and /users/{login}/repos from memory.
// Repositories are named repo1..repoN, newest first.
type fakeGitHub struct {
	mu     sync.Mutex
	users  map[string]int // login → public repo count
	status int            // non-zero: every request fails with it
}

func (f *fakeGitHub) addUser(login string, repos int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[login] = repos
}

func (f *fakeGitHub) failWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	status := f.status
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	var (
		login string
		count int
		ok    bool
	)
	if len(parts) >= 2 && parts[0] == "users" {
		login = parts[1]
		count, ok = f.users[login]
	}
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, `{"message":"nope"}`, status)
		return
	}
	if !ok {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if len(parts) == 2 {
		json.NewEncoder(w).Encode(map[string]any{
			"id":           len(login),
			"login":        login,
			"name":         strings.ToUpper(login[:1]) + login[1:],
			"avatar_url":   "https://avatars.example/" + login,
			"html_url":     "https://github.com/" + login,
			"public_repos": count,
		})
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	repos := []map[string]any{}
	for i := (page-1)*perPage + 1; i <= page*perPage && i <= count; i++ {
		name := fmt.Sprintf("repo%d", i)
		repos = append(repos, map[string]any{
			"id":               i,
			"name":             name,
			"full_name":        login + "/" + name,
			"description":      "Description of " + name,
			"html_url":         "https://github.com/" + login + "/" + name,
			"stargazers_count": i * 10,
			"owner":            map[string]string{"login": login},
		})
	}
	json.NewEncoder(w).Encode(repos)
}

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================

// testEnv wires the real services to an in-memory SQLite store and the
// fake GitHub, and mounts the handlers the way the server does.
type testEnv struct {
	db     *sqliteRepo.DB
	gh     *fakeGitHub
	tokens *auth.TokenService
	router http.Handler
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := discardLogger()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fake := &fakeGitHub{users: make(map[string]int)}
	ghSrv := httptest.NewServer(fake)
	t.Cleanup(ghSrv.Close)

	// a fresh cache per test, with a TTL short enough that a test changing
	// the fake's behavior never reads a stale entry
	gh := github.New(github.Options{
		BaseURL:    ghSrv.URL,
		Cache:      cache.NewMemory(),
		CacheTTL:   time.Nanosecond,
		HTTPClient: ghSrv.Client(),
		Logger:     logger,
	})

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	renderer, err := view.NewRenderer(web.FS)
	require.NoError(t, err)

	collections := service.NewCollectionService(db, gh, logger)
	profiles := service.NewProfileService(db, gh, 10, logger)

	pages := handler.NewPageHandler(renderer, profiles, collections, db,
		handler.PageHandlerConfig{BaseURL: "https://facet.example", OAuthEnabled: true}, logger)
	api := handler.NewCollectionHandler(collections, logger)
	proxy := handler.NewProxyHandler(gh, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/github/repos", proxy.HandleRepos)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			api.Routes(r)
		})
	})
	r.With(auth.RequireAuth(tokens)).Get("/dashboard/pick", pages.HandlePick)
	r.With(auth.RequirePage(tokens)).Get("/dashboard", pages.HandleDashboard)
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))
		r.Get("/", pages.HandleHome)
		r.Get("/login", pages.HandleLogin)
		r.Get("/search", pages.HandleSearch)
		r.Get("/sitemap.xml", pages.HandleSitemap)
		r.Get("/{username}", pages.HandleProfile)
	})

	return &testEnv{db: db, gh: fake, tokens: tokens, router: r}
}

// signUp stores a local profile and returns a session cookie for it.
func (e *testEnv) signUp(t *testing.T, id, login string) *http.Cookie {
	t.Helper()
	require.NoError(t, e.db.UpsertProfile(context.Background(), &model.Profile{
		ID:             id,
		GitHubUsername: login,
		DisplayName:    strings.ToUpper(login[:1]) + login[1:],
		AvatarURL:      "https://avatars.example/" + login,
		Bio:            "Bio of " + login,
	}))
	token, err := e.tokens.Issue(auth.Session{UserID: id, Login: login})
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

// do sends a request through the router. body, when non-empty, is JSON.
func (e *testEnv) do(t *testing.T, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}
