package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/facet/internal/handler"
)

type brokenFetcher struct{}

func (brokenFetcher) ListReposRaw(ctx context.Context, login string, page, perPage int) ([]byte, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestProxyHandler_HandleRepos(t *testing.T) {
	t.Run("missing username", func(t *testing.T) {
		env := newTestEnv(t)
		rr := env.do(t, http.MethodGet, "/api/github/repos", "", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, map[string]string{"error": "Username is required"}, decode[map[string]string](t, rr))
	})

	t.Run("forwards GitHub's body", func(t *testing.T) {
		env := newTestEnv(t)
		env.gh.addUser("alice", 3)

		rr := env.do(t, http.MethodGet, "/api/github/repos?username=alice&page=1&perPage=2", "", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
		repos := decode[[]map[string]any](t, rr)
		require.Len(t, repos, 2)
		assert.Equal(t, "alice/repo1", repos[0]["full_name"])
		assert.Equal(t, float64(10), repos[0]["stargazers_count"], "fields pass through unrenamed")
	})

	t.Run("rate limited", func(t *testing.T) {
		env := newTestEnv(t)
		env.gh.failWith(http.StatusForbidden)

		rr := env.do(t, http.MethodGet, "/api/github/repos?username=alice", "", nil)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "GitHub API rate limit exceeded", decode[map[string]string](t, rr)["error"])
	})

	t.Run("other GitHub status is mirrored", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodGet, "/api/github/repos?username=ghost", "", nil)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "Failed to fetch from GitHub", decode[map[string]string](t, rr)["error"])
	})

	t.Run("transport failure", func(t *testing.T) {
		h := handler.NewProxyHandler(brokenFetcher{}, discardLogger())
		req := httptest.NewRequest(http.MethodGet, "/api/github/repos?username=alice", nil)
		rr := httptest.NewRecorder()

		h.HandleRepos(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "Internal Server Error", decode[map[string]string](t, rr)["error"])
		assert.NotContains(t, rr.Body.String(), "connection refused")
	})
}
