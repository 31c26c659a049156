package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
)

func testKey() []byte {
	return []byte(strings.Repeat("k", keyLength))
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	assert.True(t, VerifyPassword(hash, "correct horse"))
	assert.False(t, VerifyPassword(hash, "wrong horse"))
	assert.False(t, VerifyPassword("not-a-hash", "correct horse"))
}

func TestHashPassword_Policy(t *testing.T) {
	_, err := HashPassword("12345")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = HashPassword(strings.Repeat("x", maxPasswordLength+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestTokenRoundTrip(t *testing.T) {
	svc, err := NewTokenService(testKey(), time.Hour)
	require.NoError(t, err)

	user := &domain.User{ID: "u1", Email: "ada@example.com", Role: domain.RoleAdmin}
	token, expires, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v4.local."))
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, domain.Actor{UserID: "u1", Role: domain.RoleAdmin}, claims.Actor())
	assert.True(t, strings.HasPrefix(claims.TokenID, "tok-"))
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	svc, err := NewTokenService(testKey(), time.Minute)
	require.NoError(t, err)
	token, _, err := svc.GenerateAccessToken(&domain.User{ID: "u1", Role: domain.RoleMember})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.VerifyAccessToken(token)
	assert.ErrorIs(t, err, domainerrors.ErrTokenExpired)
}

func TestVerifyAccessToken_WrongKey(t *testing.T) {
	issuer, err := NewTokenService(testKey(), time.Hour)
	require.NoError(t, err)
	token, _, err := issuer.GenerateAccessToken(&domain.User{ID: "u1"})
	require.NoError(t, err)

	other, err := NewTokenService([]byte(strings.Repeat("z", keyLength)), time.Hour)
	require.NoError(t, err)

	_, err = other.VerifyAccessToken(token)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	_, err = other.VerifyAccessToken("garbage")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestNewTokenService_KeyLength(t *testing.T) {
	_, err := NewTokenService([]byte("short"), time.Hour)
	assert.Error(t, err)
}

func TestLoadOrGenerateKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, first, keyLength)

	second, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(filepath.Join(dir, keyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestParseKey(t *testing.T) {
	_, err := ParseKey("abc")
	assert.Error(t, err)

	key, err := ParseKey(strings.Repeat("ab", keyLength) + "\n")
	require.NoError(t, err)
	assert.Len(t, key, keyLength)
}
