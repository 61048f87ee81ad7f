// Package config loads server settings from the environment.
//
// A .env file in the working directory, when present, is read first
// (github.com/joho/godotenv). Variables already set in the real environment
// win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port    int
	BaseURL string

	DBPath      string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	JWTSecret     string
	SessionTTL    time.Duration
	SecureCookies bool

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	GitHubToken        string
	GitHubAPIURL       string

	CacheTTL        time.Duration
	ProfilePageSize int
	AllowedOrigins  []string

	LogLevel  slog.Level
	LogFormat string
}

// MinSecretLen is the shortest JWT_SECRET accepted.
const MinSecretLen = 16

// Load reads .env (if any) and the environment. Malformed values and a
// missing or short JWT_SECRET are errors.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := &Config{
		Port:               p.int("PORT", 8080),
		DBPath:             getenv("DB_PATH", "data/facet.db"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		SessionTTL:         p.duration("SESSION_TTL", 7*24*time.Hour),
		SecureCookies:      p.bool("SECURE_COOKIES", false),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  os.Getenv("GITHUB_CALLBACK_URL"),
		GitHubToken:        os.Getenv("GITHUB_TOKEN"),
		GitHubAPIURL:       getenv("GITHUB_API_URL", "https://api.github.com"),
		CacheTTL:           p.duration("CACHE_TTL", time.Hour),
		ProfilePageSize:    p.int("PROFILE_PAGE_SIZE", 10),
		AllowedOrigins:     splitList(os.Getenv("ALLOWED_ORIGINS")),
		LogFormat:          getenv("LOG_FORMAT", "text"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	cfg.BaseURL = strings.TrimRight(getenv("BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = cfg.BaseURL + "/auth/callback"
	}

	if len(cfg.JWTSecret) < MinSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", MinSecretLen))
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", cfg.Port))
	}
	if cfg.ProfilePageSize < 1 || cfg.ProfilePageSize > 100 {
		errs = append(errs, fmt.Errorf("PROFILE_PAGE_SIZE must be between 1 and 100"))
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// OAuthEnabled reports whether GitHub sign-in can be offered.
func (c *Config) OAuthEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs *[]error
}

func (p parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func (p parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return fallback
	}
	return b
}
