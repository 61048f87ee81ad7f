// Package github is a small read-only client for the GitHub REST API.
//
// Only the two endpoints the application needs are covered: a user's public
// profile and a page of their repositories. Successful responses are kept in
// a cache.Cache so repeated page views do not spend the rate limit.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/cache"
)

const (
	DefaultBaseURL  = "https://api.github.com"
	DefaultCacheTTL = time.Hour
	MaxPerPage      = 100

	// responses above this size fail with ErrResponseTooLarge
	maxBodyBytes = 8 << 20
)

// ErrRateLimited is matched by a StatusError for 403 and 429 responses.
var ErrRateLimited = errors.New("github: rate limit exceeded")

// ErrResponseTooLarge is returned instead of a truncated body.
var ErrResponseTooLarge = errors.New("github: response too large")

// StatusError is returned for any non-200 response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github: GET %s: status %d", e.URL, e.StatusCode)
}

// Unwrap lets callers test the class of failure with errors.Is.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return apperror.ErrNotFound
	default:
		return apperror.ErrUpstream
	}
}

// User is the subset of GET /users/{login} the application reads.
type User struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
	HTMLURL     string `json:"html_url"`
	PublicRepos int    `json:"public_repos"`
}

// Repo is the subset of a repository object the application reads.
type Repo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	HTMLURL     string    `json:"html_url"`
	Language    string    `json:"language"`
	Stars       int       `json:"stargazers_count"`
	Fork        bool      `json:"fork"`
	UpdatedAt   time.Time `json:"updated_at"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type Options struct {
	BaseURL string
	// Token, when set, is sent as a bearer token for the higher
	// authenticated rate limit.
	Token      string
	Cache      cache.Cache
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	baseURL string
	http    *http.Client
	cache   cache.Cache
	ttl     time.Duration
	logger  *slog.Logger
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Token != "" {
		// oauth2.NewClient builds on the *http.Client found in the context,
		// so a custom transport (or test server client) is kept.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
		authed.Timeout = hc.Timeout
		hc = authed
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		cache:   opts.Cache,
		ttl:     opts.CacheTTL,
		logger:  opts.Logger,
	}
}

// GetUser fetches a user's public profile. An unknown login yields an error
// matching apperror.ErrNotFound.
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	body, err := c.get(ctx, "/users/"+url.PathEscape(login))
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("github: decoding user %s: %w", login, err)
	}
	return &u, nil
}

// ListRepos fetches one page of the user's repositories, most recently
// updated first.
func (c *Client) ListRepos(ctx context.Context, login string, page, perPage int) ([]Repo, error) {
	body, err := c.ListReposRaw(ctx, login, page, perPage)
	if err != nil {
		return nil, err
	}
	repos := []Repo{}
	if err := json.Unmarshal(body, &repos); err != nil {
		return nil, fmt.Errorf("github: decoding repos of %s: %w", login, err)
	}
	return repos, nil
}

// ListReposRaw is ListRepos without decoding: the provider's JSON body as
// received, for callers that forward it unmodified.
func (c *Client) ListReposRaw(ctx context.Context, login string, page, perPage int) ([]byte, error) {
	page, perPage = clampPage(page, perPage)
	q := url.Values{}
	q.Set("sort", "updated")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	return c.get(ctx, "/users/"+url.PathEscape(login)+"/repos?"+q.Encode())
}

func clampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// get returns the body of a 200 response, from cache when possible.
// Cache failures are logged and otherwise ignored.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	u := c.baseURL + path

	if body, ok, err := c.cache.Get(ctx, u); err != nil {
		c.logger.Warn("github cache read failed",
			slog.String("url", u),
			slog.String("error", err.Error()),
		)
	} else if ok {
		return body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("github: building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: u}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("github: reading %s: %w", u, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("github: reading %s: %w", u, ErrResponseTooLarge)
	}

	if err := c.cache.Set(ctx, u, body, c.ttl); err != nil {
		c.logger.Warn("github cache write failed",
			slog.String("url", u),
			slog.String("error", err.Error()),
		)
	}
	return body, nil
}
