package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/facet/internal/github"
)

// ReposFetcher returns a page of a user's repositories as GitHub's raw JSON.
type ReposFetcher interface {
	ListReposRaw(ctx context.Context, login string, page, perPage int) ([]byte, error)
}

// ProxyHandler forwards repository listings to GitHub so browsers never
// spend their own rate limit or see the server's token.
type ProxyHandler struct {
	gh     ReposFetcher
	logger *slog.Logger
}

func NewProxyHandler(gh ReposFetcher, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{gh: gh, logger: logger}
}

// proxyError is the proxy's error envelope: {"error": "..."} only.
type proxyError struct {
	Error string `json:"error"`
}

// HandleRepos returns one page of a user's repositories.
//
// HTTP: GET /api/github/repos?username=&page=&perPage=
//
// RESPONSES:
//   - 200 GitHub's JSON array, unmodified, cacheable for an hour
//   - 400 username missing
//   - 403 GitHub rate limit
//   - GitHub's status for any other GitHub failure
//   - 500 anything else
func (h *ProxyHandler) HandleRepos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	username := q.Get("username")
	if username == "" {
		writeJSON(w, http.StatusBadRequest, proxyError{"Username is required"})
		return
	}
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "perPage", 30)

	body, err := h.gh.ListReposRaw(r.Context(), username, page, perPage)
	if err != nil {
		var se *github.StatusError
		switch {
		case errors.As(err, &se) && se.StatusCode == http.StatusForbidden:
			writeJSON(w, http.StatusForbidden, proxyError{"GitHub API rate limit exceeded"})
		case errors.As(err, &se):
			writeJSON(w, se.StatusCode, proxyError{"Failed to fetch from GitHub"})
		default:
			h.logger.Error("github proxy failed",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, proxyError{"Internal Server Error"})
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// queryInt reads a positive integer query parameter, falling back to def
// when it is absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 1 {
		return def
	}
	return n
}
