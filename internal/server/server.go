// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It connects storage, the GitHub client,
// services, handlers, middleware and routes, and decides:
//   - which store backs the app (PostgreSQL or the embedded SQLite file)
//   - which cache backs the GitHub client (Redis or in-process memory)
//   - which URL patterns map to which handlers, behind which guards
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New creates:
//	  store (sqlite | postgres)        ─┐
//	  cache (redis | memory) → github  ─┼→ services → handlers → routes
//	  auth.TokenService                ─┘
//
// This is the "composition root" pattern: all dependencies are wired in one
// place rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/facet/internal/auth"
	"github.com/sakif/facet/internal/cache"
	"github.com/sakif/facet/internal/config"
	"github.com/sakif/facet/internal/github"
	"github.com/sakif/facet/internal/handler"
	"github.com/sakif/facet/internal/middleware"
	"github.com/sakif/facet/internal/repository"
	postgresRepo "github.com/sakif/facet/internal/repository/postgres"
	sqliteRepo "github.com/sakif/facet/internal/repository/sqlite"
	"github.com/sakif/facet/internal/service"
	"github.com/sakif/facet/internal/view"
	"github.com/sakif/facet/web"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and, when configured, the Redis
// client. Both are closed during shutdown in Start, or by Close when the
// server is never started.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	store  repository.Store
	rdb    *redis.Client
}

// New builds the server from cfg.
//
// WIRING ORDER:
//  1. Store: PostgreSQL when DATABASE_URL is set, else SQLite at DB_PATH
//  2. Cache: Redis when REDIS_ADDR is set and reachable, else memory
//  3. GitHub client, token service, OAuth provider
//  4. Services, then handlers, then routes
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.DatabaseURL != "" {
		db, err := postgresRepo.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		logger.Info("using postgres store")
		return db, nil
	}

	if cfg.DBPath != ":memory:" {
		// os.MkdirAll is `mkdir -p`: no error when the directory exists
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	logger.Info("using sqlite store", slog.String("path", cfg.DBPath))
	return db, nil
}

// openCache prefers Redis so every instance shares one copy of GitHub
// responses. An unreachable Redis is not fatal: the app still works, it
// just spends more of the rate limit.
func (s *Server) openCache() cache.Cache {
	if s.cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb, err := cache.NewRedisClient(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword)
	if err != nil {
		s.logger.Warn("redis unavailable, using in-memory cache", slog.String("error", err.Error()))
		return cache.NewMemory()
	}
	s.rdb = rdb
	return cache.NewRedis(rdb, "facet:gh:")
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /static/*                    static assets (embedded)
//	GET    /healthz                     liveness
//	GET    /auth/login                  → GitHub
//	GET    /auth/callback               ← GitHub
//	POST   /auth/logout
//	GET    /auth/auth-code-error        sign-in failure page
//	GET    /api/github/repos            public GitHub proxy
//	GET    /api/me                      session user (RequireAuth)
//	*      /api/...                     collection API (RequireAuth)
//	GET    /dashboard                   owner dashboard (RequirePage)
//	GET    /dashboard/pick              add-dialog fragment (RequireAuth)
//	GET    /, /login, /search, /sitemap.xml
//	GET    /{username}                  public profile
//
// Static segments win over {username} in chi, so "dashboard" or "login"
// can never be shadowed by a profile.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: unique id per request, read by the logger
//  2. RealIP: client IP from proxy headers
//  3. Logger: one line per request
//  4. Recoverer: a panic becomes a 500 instead of a crash
func (s *Server) setupRoutes() error {
	cfg, logger := s.cfg, s.logger

	// === Dependencies ===
	gh := github.New(github.Options{
		BaseURL:  cfg.GitHubAPIURL,
		Token:    cfg.GitHubToken,
		Cache:    s.openCache(),
		CacheTTL: cfg.CacheTTL,
		Logger:   logger,
	})

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	renderer, err := view.NewRenderer(web.FS)
	if err != nil {
		return fmt.Errorf("parsing templates: %w", err)
	}
	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		return fmt.Errorf("static assets: %w", err)
	}

	authService := service.NewAuthService(s.store, tokens, logger)
	collectionService := service.NewCollectionService(s.store, gh, logger)
	profileService := service.NewProfileService(s.store, gh, cfg.ProfilePageSize, logger)

	pages := handler.NewPageHandler(renderer, profileService, collectionService, s.store,
		handler.PageHandlerConfig{BaseURL: cfg.BaseURL, OAuthEnabled: cfg.OAuthEnabled()}, logger)
	collections := handler.NewCollectionHandler(collectionService, logger)
	proxy := handler.NewProxyHandler(gh, logger)

	// === Global Middleware ===
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)

	r.NotFound(pages.HandleNotFound)

	// === Static Files ===
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))
	r.Get("/healthz", handler.HandleHealth)

	// === Auth ===
	// Without OAuth credentials the server still runs; sign-in is simply
	// not offered and /auth/login falls back to the explanatory /login page.
	var provider handler.OAuthProvider
	if cfg.OAuthEnabled() {
		gp := auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
		if cfg.GitHubAPIURL != github.DefaultBaseURL {
			gp = gp.WithEndpoints(enterpriseEndpoints(cfg.GitHubAPIURL))
		}
		provider = gp
	} else {
		logger.Warn("GITHUB_CLIENT_ID or GITHUB_CLIENT_SECRET not set: sign-in is disabled")
	}
	authHandler := handler.NewAuthHandler(provider, authService, tokens, cfg.SecureCookies, logger)

	r.Route("/auth", func(r chi.Router) {
		if provider != nil {
			r.Get("/login", authHandler.HandleLogin)
			r.Get("/callback", authHandler.HandleCallback)
		} else {
			r.Get("/login", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/login", http.StatusFound)
			})
		}
		r.Post("/logout", authHandler.HandleLogout)
		r.With(auth.OptionalAuth(tokens)).Get("/auth-code-error", pages.HandleAuthError)
	})

	// === API ===
	// CORS: only origins listed in ALLOWED_ORIGINS may call the API from a
	// browser, with credentials. The site itself is same-origin and needs
	// no CORS headers.
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowOriginFunc: func(_ *http.Request, origin string) bool {
				return slices.Contains(cfg.AllowedOrigins, origin)
			},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		r.Get("/github/repos", proxy.HandleRepos)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", authHandler.HandleMe)
			collections.Routes(r)
		})
	})

	// === Pages ===
	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePage(tokens))
		r.Get("/dashboard", pages.HandleDashboard)
	})
	r.With(auth.RequireAuth(tokens)).Get("/dashboard/pick", pages.HandlePick)

	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))
		r.Get("/", pages.HandleHome)
		r.Get("/login", pages.HandleLogin)
		r.Get("/search", pages.HandleSearch)
		r.Get("/sitemap.xml", pages.HandleSitemap)
		r.Get("/{username}", pages.HandleProfile)
	})

	return nil
}

// enterpriseEndpoints derives the OAuth and user endpoints of a GitHub
// Enterprise Server from its API root, e.g. https://ghe.example/api/v3.
func enterpriseEndpoints(apiURL string) (authURL, tokenURL, userURL string) {
	api := strings.TrimRight(apiURL, "/")
	site := strings.TrimSuffix(api, "/api/v3")
	return site + "/login/oauth/authorize", site + "/login/oauth/access_token", api + "/user"
}

// Handler exposes the router, for tests and for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store and the Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database and Redis connections
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // GitHub calls on a cold cache can be slow
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("url", s.cfg.BaseURL),
			slog.Bool("oauth", s.cfg.OAuthEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
