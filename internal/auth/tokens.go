package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
	"github.com/townsquareapp/townsquare-server/internal/id"
)

const (
	tokenIssuer   = "townsquare-server"
	tokenAudience = "townsquare-client"
)

// TokenService issues and verifies PASETO v4.local access tokens.
type TokenService struct {
	key            paseto.V4SymmetricKey
	accessDuration time.Duration
	now            func() time.Time
}

// NewTokenService creates a token service from a 32-byte key.
func NewTokenService(key []byte, accessDuration time.Duration) (*TokenService, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("PASETO v4 key must be %d bytes, got %d", keyLength, len(key))
	}
	sym, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create PASETO symmetric key: %w", err)
	}
	return &TokenService{key: sym, accessDuration: accessDuration, now: time.Now}, nil
}

// GenerateAccessToken issues a token for user and returns it with its expiry.
func (s *TokenService) GenerateAccessToken(user *domain.User) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.accessDuration)

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(user.ID)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(expires)

	jti, err := id.Generate(id.PrefixToken)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(jti)

	//nolint:errcheck // Set only fails for values that cannot be marshalled
	_ = token.Set("user_id", user.ID)
	//nolint:errcheck
	_ = token.Set("email", user.Email)
	//nolint:errcheck
	_ = token.Set("role", user.Role)

	return token.V4Encrypt(s.key, nil), expires, nil
}

// VerifyAccessToken decrypts and validates a token. Expired tokens return a
// TOKEN_EXPIRED error and any other failure UNAUTHORIZED.
func (s *TokenService) VerifyAccessToken(raw string) (*AccessClaims, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))

	token, err := parser.ParseV4Local(s.key, raw, nil)
	if err != nil {
		return nil, domainerrors.Unauthorized("invalid access token").WithCause(err)
	}

	var claims AccessClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, domainerrors.Unauthorized("invalid access token").WithCause(err)
	}

	now := s.now()
	if !claims.Expiration.IsZero() && now.After(claims.Expiration) {
		return nil, domainerrors.TokenExpired("access token expired")
	}
	if !claims.NotBefore.IsZero() && now.Before(claims.NotBefore.Add(-time.Minute)) {
		return nil, domainerrors.Unauthorized("access token not yet valid")
	}
	if claims.UserID == "" {
		return nil, domainerrors.Unauthorized("access token has no subject")
	}
	return &claims, nil
}

// AccessTokenDuration returns the configured access token lifetime.
func (s *TokenService) AccessTokenDuration() time.Duration {
	return s.accessDuration
}
