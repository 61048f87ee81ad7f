package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/auth"
)

// newTestAuthService returns an AuthService wired with a fake store.
func newTestAuthService(t *testing.T, store *fakeStore) (*AuthService, *auth.TokenService) {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)
	return NewAuthService(store, ts, discardLogger()), ts
}

// =========================================================================
// SignIn TESTS
// =========================================================================

func TestSignIn_NewUser(t *testing.T) {
	store := newFakeStore()
	svc, ts := newTestAuthService(t, store)

	res, err := svc.SignIn(context.Background(), &auth.GitHubUser{
		ID: 583231, Login: "alice", Name: "Alice", AvatarURL: "https://a/alice", Bio: "builds things",
	})
	require.NoError(t, err)

	assert.Equal(t, auth.Session{UserID: "583231", Login: "alice"}, res.Session)
	require.NotNil(t, res.Profile)
	assert.Equal(t, "alice", res.Profile.GitHubUsername)
	assert.Equal(t, "builds things", res.Profile.Bio)

	sess, err := ts.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Session, *sess)

	stored, err := store.GetProfile(context.Background(), "583231")
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.DisplayName)
}

func TestSignIn_RefreshesProfileOnUsernameChange(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestAuthService(t, store)
	ctx := context.Background()

	_, err := svc.SignIn(ctx, &auth.GitHubUser{ID: 99, Login: "old-login"})
	require.NoError(t, err)
	res, err := svc.SignIn(ctx, &auth.GitHubUser{ID: 99, Login: "new-login"})
	require.NoError(t, err)

	assert.Equal(t, "new-login", res.Profile.GitHubUsername)
	_, found, _ := store.FindProfileByUsername(ctx, "old-login")
	assert.False(t, found)
	_, found, _ = store.FindProfileByUsername(ctx, "NEW-LOGIN")
	assert.True(t, found)
}

func TestSignIn_ProfileSyncFailureDoesNotBlock(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = errors.New("database is on fire")
	svc, _ := newTestAuthService(t, store)

	res, err := svc.SignIn(context.Background(), &auth.GitHubUser{ID: 1, Login: "user"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Nil(t, res.Profile)
}

func TestSignIn_RejectsIncompleteUser(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeStore())

	_, err := svc.SignIn(context.Background(), nil)
	assert.Error(t, err)

	_, err = svc.SignIn(context.Background(), &auth.GitHubUser{ID: 1})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// =========================================================================
// Me TESTS
// =========================================================================

func TestMe(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestAuthService(t, store)
	ctx := context.Background()

	res, err := svc.SignIn(ctx, &auth.GitHubUser{ID: 7, Login: "findme", Name: "Find Me"})
	require.NoError(t, err)

	p, err := svc.Me(ctx, res.Session)
	require.NoError(t, err)
	assert.Equal(t, "Find Me", p.DisplayName)
}

func TestMe_WithoutProfileRowFallsBackToSession(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeStore())

	p, err := svc.Me(context.Background(), auth.Session{UserID: "5", Login: "ghost"})
	require.NoError(t, err)
	assert.Equal(t, "5", p.ID)
	assert.Equal(t, "ghost", p.GitHubUsername)
}

func TestMe_Anonymous(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeStore())

	_, err := svc.Me(context.Background(), auth.Session{})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}
