// Package auth handles GitHub sign-in and the signed session cookie.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User visits /auth/login → redirected to GitHub
//  2. GitHub calls back /auth/callback with a code
//  3. Server exchanges the code for the GitHub user, upserts the local profile
//  4. Server issues a session JWT and stores it in an HttpOnly cookie
//  5. On later requests, middleware validates the cookie once and puts the
//     Session in the request context; handlers pass Session.UserID down to
//     services as the acting owner
//
// The token is stateless: userID, login and expiry are inside the signed
// payload, so validating a request needs only the secret, not a DB lookup.
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Payload: {"sub":"583231","login":"alice","iss":"facet","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "facet"

// DefaultSessionTTL is used when NewTokenService gets a zero ttl.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Session is the identity carried by a valid token.
// UserID is the GitHub numeric user id; Login is the username at sign-in.
type Session struct {
	UserID string
	Login  string
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of issued tokens; the cookie uses the same value.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. "sub" (Subject) holds the user id, the standard
// claim for who the token belongs to; Login rides along for display.
type claims struct {
	Login string `json:"login"`
	jwt.RegisteredClaims
}

// Issue creates and signs a session token (HS256).
func (s *TokenService) Issue(sess Session) (string, error) {
	return s.issueWithDuration(sess, s.ttl)
}

func (s *TokenService) issueWithDuration(sess Session, d time.Duration) (string, error) {
	if sess.UserID == "" {
		return "", errors.New("auth: session has no user id")
	}
	now := time.Now()

	c := claims{
		Login: sess.Login,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired
//   - Issuer matches "facet"
//   - Algorithm is HS256 (an attacker cannot downgrade to "none")
func (s *TokenService) Validate(tokenStr string) (*Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	return &Session{UserID: c.Subject, Login: c.Login}, nil
}
