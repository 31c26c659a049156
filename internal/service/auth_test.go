package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
)

func TestSignupAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.auth.Signup(ctx, SignupRequest{Name: "Carol", Email: " Carol@Example.com ", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", resp.User.Email)
	assert.Equal(t, domain.RoleMember, resp.User.Role)
	assert.Empty(t, resp.User.PasswordHash)
	assert.NotEmpty(t, resp.AccessToken)

	actor, err := f.auth.VerifyAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, actor.UserID)
	assert.Equal(t, domain.RoleMember, actor.Role)

	profiles := 0
	for _, row := range f.b.Rows("profiles") {
		if row.String("user_id") == resp.User.ID {
			profiles++
			assert.Equal(t, "Carol", row.String("name"))
		}
	}
	assert.Equal(t, 1, profiles)

	login, err := f.auth.Login(ctx, LoginRequest{Email: "  CAROL@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)
	assert.Empty(t, login.User.PasswordHash)

	_, err = f.auth.Login(ctx, LoginRequest{Email: "carol@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = f.auth.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)
}

func TestSignup_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Signup(ctx, SignupRequest{Name: "Dup", Email: "alice@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyExists)

	_, err = f.auth.Signup(ctx, SignupRequest{Name: "Short", Email: "short@example.com", Password: "abc"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = f.auth.Signup(ctx, SignupRequest{Name: "   ", Email: "blank@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = f.auth.Signup(ctx, SignupRequest{Name: "Bad", Email: "not-an-email", Password: "secret1"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestVerifyAccessToken_Garbage(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.VerifyAccessToken("v4.local.garbage")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestCurrentUserAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.auth.CurrentUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Empty(t, u.PasswordHash)

	_, err = f.auth.CurrentUser(ctx, domain.Anonymous())
	assert.ErrorIs(t, err, domainerrors.ErrUnauthenticated)

	_, err = f.workspaces.Get(ctx, alice)
	require.NoError(t, err)
	f.auth.Logout(alice)
	_, ok := f.workspaces.Peek(alice.UserID)
	assert.False(t, ok)
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.auth.EnsureAdmin(ctx, "root@example.com", "rootpass"))
	resp, err := f.auth.Login(ctx, LoginRequest{Email: "root@example.com", Password: "rootpass"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, resp.User.Role)

	// Idempotent.
	require.NoError(t, f.auth.EnsureAdmin(ctx, "root@example.com", "rootpass"))
	assert.Len(t, f.b.Rows("users"), 4)

	// Existing member is promoted.
	require.NoError(t, f.auth.EnsureAdmin(ctx, "bob@example.com", "ignored"))
	assert.Equal(t, "admin", f.column(t, "users", "bob", "role"))
}
