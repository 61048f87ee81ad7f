package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/facet/internal/auth"
	"github.com/sakif/facet/internal/service"
)

const (
	stateCookie = "facet_oauth_state"
	nextCookie  = "facet_next"

	// AuthErrorPath is where every failed sign-in ends up.
	AuthErrorPath = "/auth/auth-code-error"
)

// OAuthProvider is the GitHub side of the sign-in flow.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler manages the GitHub OAuth login flow and the session cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin    → remember where to return, redirect to GitHub
//   - HandleCallback → verify state, exchange the code, sign in, set cookie
//   - HandleLogout   → clear the session cookie
//   - HandleMe       → the signed-in user's profile
type AuthHandler struct {
	provider OAuthProvider
	auth     *service.AuthService
	tokens   *auth.TokenService
	secure   bool
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secure marks cookies HTTPS-only
// and should be true in production.
func NewAuthHandler(
	provider OAuthProvider,
	authService *service.AuthService,
	tokens *auth.TokenService,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		auth:     authService,
		tokens:   tokens,
		secure:   secure,
		logger:   logger,
	}
}

// HandleLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/login?next=/dashboard
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived cookie and sent to GitHub;
// HandleCallback only accepts a callback carrying the same value.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	h.setShortCookie(w, stateCookie, state)
	h.setShortCookie(w, nextCookie, SafeNext(r.URL.Query().Get("next")))

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/callback?code=xxx&state=yyy[&next=/path]
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the GitHub user
//  3. Sign in: profile sync (best effort) and session token
//  4. Store the token in an HttpOnly cookie
//  5. Redirect to next (default "/")
//
// Every failure redirects to /auth/auth-code-error.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	next := SafeNext(q.Get("next"))
	if c, err := r.Cookie(nextCookie); err == nil && q.Get("next") == "" {
		next = SafeNext(c.Value)
	}
	h.clearCookie(w, stateCookie)
	h.clearCookie(w, nextCookie)

	// --- Step 1: Validate CSRF state ---
	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || q.Get("state") != state.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Redirect(w, r, AuthErrorPath, http.StatusFound)
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, AuthErrorPath, http.StatusFound)
		return
	}

	// --- Step 2: Exchange code for the GitHub user ---
	code := q.Get("code")
	if code == "" {
		h.logger.Warn("auth callback: missing code")
		http.Redirect(w, r, AuthErrorPath, http.StatusFound)
		return
	}
	ghUser, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Redirect(w, r, AuthErrorPath, http.StatusFound)
		return
	}

	// --- Step 3: Sign in ---
	res, err := h.auth.SignIn(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed", slog.String("error", err.Error()))
		http.Redirect(w, r, AuthErrorPath, http.StatusFound)
		return
	}

	// --- Step 4: Session cookie ---
	// HttpOnly: JavaScript cannot read it. SameSite=Lax: sent on top-level
	// navigations, not on cross-site POSTs.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	// --- Step 5: Back to where the user started ---
	http.Redirect(w, r, next, http.StatusFound)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// The token stays valid until it expires; without the cookie the browser
// simply stops sending it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, auth.CookieName)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleMe returns the signed-in user's profile.
//
// HTTP: GET /api/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	if sess == nil {
		sess = &auth.Session{}
	}
	p, err := h.auth.Me(r.Context(), *sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AuthHandler) setShortCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   600, // 10 minutes to approve on GitHub
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SafeNext returns next when it is a path on this site, else "/".
// "//evil.example" and "/\evil.example" are rejected: browsers treat both
// as another host.
func SafeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}
