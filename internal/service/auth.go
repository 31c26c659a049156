package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/townsquareapp/townsquare-server/internal/auth"
	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
)

// AuthService handles sign-up, sign-in and token verification.
type AuthService struct {
	backend    backend.Backend
	tokens     *auth.TokenService
	workspaces *Workspaces
	validator  Validator
	logger     *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(b backend.Backend, tokens *auth.TokenService, workspaces *Workspaces, v Validator, logger *slog.Logger) *AuthService {
	return &AuthService{backend: b, tokens: tokens, workspaces: workspaces, validator: v, logger: logger}
}

// SignupRequest contains the data for a new resident account.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=1024"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Address  string `json:"address,omitempty" validate:"omitempty,max=300"`
}

// LoginRequest contains user credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse contains the access token and the signed-in user.
type AuthResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// Signup creates a member account and its public profile.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, req, domain.RoleMember)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User signed up", "user_id", user.ID)
	return s.issue(user)
}

// Login authenticates a user by email and password.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.userByEmail(ctx, req.Email)
	if errors.Is(err, domainerrors.ErrNotFound) {
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}

	s.logger.Info("User logged in", "user_id", user.ID)
	return s.issue(user)
}

// Logout drops the actor's cached workspace.
func (s *AuthService) Logout(actor domain.Actor) {
	if actor.Authenticated() {
		s.workspaces.Evict(actor.UserID)
	}
}

// VerifyAccessToken returns the actor a token was issued to.
func (s *AuthService) VerifyAccessToken(token string) (domain.Actor, error) {
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return domain.Actor{}, err
	}
	return claims.Actor(), nil
}

// CurrentUser returns the actor's account.
func (s *AuthService) CurrentUser(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	user, err := selectOne[domain.User](ctx, s.backend, collUsers, actor.UserID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, domainerrors.NotFound("user not found")
	}
	if err != nil {
		return nil, readError(err, "user")
	}
	user.PasswordHash = ""
	return &user, nil
}

// EnsureAdmin creates the bootstrap administrator unless an account with that
// email already exists. An existing member account is promoted.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	existing, err := s.userByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.IsAdmin() {
			return nil
		}
		if _, err := s.backend.Update(ctx, collUsers, backend.Where(backend.Eq("id", existing.ID)),
			backend.Record{"role": string(domain.RoleAdmin)}); err != nil {
			return writeError(err, "user")
		}
		s.logger.Info("Promoted bootstrap administrator", "user_id", existing.ID)
		return nil
	case !errors.Is(err, domainerrors.ErrNotFound):
		return err
	}

	user, err := s.createUser(ctx, SignupRequest{Name: "Administrator", Email: email, Password: password}, domain.RoleAdmin)
	if err != nil {
		return err
	}
	s.logger.Info("Created bootstrap administrator", "user_id", user.ID)
	return nil
}

func (s *AuthService) createUser(ctx context.Context, req SignupRequest, role domain.Role) (*domain.User, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{"password": err.Error()})
	}

	rec := backend.Record{
		"email":         normalizeEmail(req.Email),
		"name":          strings.TrimSpace(req.Name),
		"password_hash": hash,
		"role":          string(role),
	}
	if req.Phone != "" {
		rec["phone"] = req.Phone
	}
	if req.Address != "" {
		rec["address"] = req.Address
	}

	row, err := s.backend.Insert(ctx, collUsers, rec)
	if errors.Is(err, backend.ErrDuplicate) {
		return nil, domainerrors.AlreadyExists("email already in use")
	}
	if err != nil {
		return nil, writeError(err, "user")
	}
	user, err := backend.Decode[domain.User](row)
	if err != nil {
		return nil, domainerrors.Internal("decode user").WithCause(err)
	}

	if _, err := s.backend.Insert(ctx, collProfiles, backend.Record{"user_id": user.ID, "name": user.Name}); err != nil {
		// The account exists; the profile only feeds display names.
		s.logger.Warn("Failed to create profile", "user_id", user.ID, "error", err)
	}

	user.PasswordHash = ""
	return &user, nil
}

func (s *AuthService) userByEmail(ctx context.Context, email string) (*domain.User, error) {
	users, err := selectAll[domain.User](ctx, s.backend, collUsers, backend.Where(backend.Eq("email", normalizeEmail(email))))
	if err != nil {
		return nil, readError(err, "user")
	}
	if len(users) == 0 {
		return nil, domainerrors.NotFound("user not found")
	}
	return &users[0], nil
}

func (s *AuthService) issue(user *domain.User) (*AuthResponse, error) {
	token, expires, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, domainerrors.Internal("issue access token").WithCause(err)
	}
	out := *user
	out.PasswordHash = ""
	return &AuthResponse{User: &out, AccessToken: token, ExpiresAt: expires}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
