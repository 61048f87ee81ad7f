// AUTHENTICATION BUSINESS LOGIC
//
// AuthService sits between the auth HTTP handlers and the profile store:
//
//	AuthHandler (HTTP) → AuthService (business rules) → ProfileRepository (DB)
//	                   ↘ TokenService (JWT)
//
// KEY RESPONSIBILITIES:
//   - Turn a verified GitHub identity into a session token
//   - Keep the local profile in sync with GitHub on every sign-in
//   - Stay free of HTTP concerns (no cookies, no redirects)

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/auth"
	"github.com/sakif/facet/internal/model"
	"github.com/sakif/facet/internal/repository"
)

// AuthService handles the sign-in business logic.
type AuthService struct {
	profiles repository.ProfileRepository
	tokens   *auth.TokenService
	logger   *slog.Logger
}

func NewAuthService(profiles repository.ProfileRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		profiles: profiles,
		tokens:   tokens,
		logger:   logger,
	}
}

// AuthResult bundles the session, its signed token and the synced profile,
// so the handler can set the cookie and redirect in one step.
//
// Profile is nil when the profile sync failed; sign-in still succeeds.
type AuthResult struct {
	Session auth.Session
	Token   string
	Profile *model.Profile
}

// SignIn handles the end of the GitHub OAuth callback.
//
//  1. Upsert the local profile from the GitHub metadata (best effort)
//  2. Issue a session token for the GitHub identity
//
// WHY BEST EFFORT?
// The session is derived from the GitHub identity alone. A database glitch
// while refreshing the profile only means the public page shows stale
// fields until the next sign-in, so it is logged and sign-in continues.
func (s *AuthService) SignIn(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}
	if ghUser.ID == 0 || strings.TrimSpace(ghUser.Login) == "" {
		return nil, apperror.ValidationFailed("user", "GitHub user has no id or login")
	}

	sess := auth.Session{
		UserID: strconv.FormatInt(ghUser.ID, 10),
		Login:  ghUser.Login,
	}

	profile := &model.Profile{
		ID:             sess.UserID,
		GitHubUsername: ghUser.Login,
		DisplayName:    ghUser.Name,
		AvatarURL:      ghUser.AvatarURL,
		Bio:            ghUser.Bio,
	}
	if err := s.profiles.UpsertProfile(ctx, profile); err != nil {
		s.logger.Warn("profile sync failed during sign-in",
			slog.String("userID", sess.UserID),
			slog.String("login", sess.Login),
			slog.String("error", err.Error()),
		)
		profile = nil
	}

	token, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", sess.UserID, err)
	}

	s.logger.Info("user signed in via GitHub",
		slog.String("userID", sess.UserID),
		slog.String("login", sess.Login),
	)

	return &AuthResult{Session: sess, Token: token, Profile: profile}, nil
}

// Me returns the profile of the signed-in user. When no profile row exists
// (the sync at sign-in failed) a minimal profile is built from the session.
func (s *AuthService) Me(ctx context.Context, sess auth.Session) (*model.Profile, error) {
	if sess.UserID == "" {
		return nil, apperror.Unauthorized("sign in required")
	}

	p, err := s.profiles.GetProfile(ctx, sess.UserID)
	if errors.Is(err, apperror.ErrNotFound) {
		return &model.Profile{ID: sess.UserID, GitHubUsername: sess.Login}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching profile %s: %w", sess.UserID, err)
	}
	return p, nil
}
