package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docvault/internal/apperr"
	"docvault/internal/auth"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/validation"
)

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	// Role is honoured only for admin callers; unknown values fall back to "user".
	Role string `json:"role"`
}

// LoginInput is the payload of a login request. ClientKey identifies the caller for throttling.
type LoginInput struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	ClientKey string `json:"-"`
}

// LoginResult is returned on successful login.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        *model.User `json:"-"`
}

// AuthOptions tune registration policy.
type AuthOptions struct {
	// AllowUserSignup lets non-admin callers register plain users once an admin exists.
	AllowUserSignup bool
	// BootstrapUsername and BootstrapPassword seed the first admin when both are set.
	BootstrapUsername string
	BootstrapPassword string
}

// Limiter throttles requests by key.
type Limiter interface {
	Allow(key string) bool
}

// AuthService is the identity and access boundary: registration, login and token resolution.
type AuthService interface {
	// Register creates a user. With zero users the caller may be anonymous and the new user
	// becomes admin; afterwards the caller must be an admin unless open signup is enabled.
	Register(ctx context.Context, caller *model.User, in RegisterInput) (*model.User, error)

	// Login verifies credentials and issues a bearer token.
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)

	// ResolveToken returns the token's user or apperr.ErrUnauthorized.
	ResolveToken(ctx context.Context, token string) (*model.User, error)

	// ResolveOptional returns the token's user or nil on any failure.
	ResolveOptional(ctx context.Context, token string) *model.User

	// EnsureBootstrapAdmin creates the configured seed admin when no users exist.
	EnsureBootstrapAdmin(ctx context.Context) error
}

type authService struct {
	users   repository.UserRepository
	tokens  *auth.TokenService
	v       *validation.Validator
	limiter Limiter
	opts    AuthOptions
	log     *slog.Logger

	// dummyHash keeps unknown-user logins as slow as wrong-password logins.
	dummyHash string
}

// NewAuthService constructs an AuthService. limiter may be nil.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, v *validation.Validator, limiter Limiter, opts AuthOptions, log *slog.Logger) (AuthService, error) {
	dummy, err := auth.HashPassword("docvault-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &authService{
		users:     users,
		tokens:    tokens,
		v:         v,
		limiter:   limiter,
		opts:      opts,
		log:       log.With("component", "auth"),
		dummyHash: dummy,
	}, nil
}

// RequireRole is a pure authorization check.
func RequireRole(u *model.User, role model.Role) (*model.User, error) {
	if u == nil {
		return nil, apperr.ErrUnauthorized
	}
	if role == model.RoleAdmin && !u.IsAdmin() {
		return nil, apperr.Forbidden("admin role required")
	}
	return u, nil
}

func (s *authService) Register(ctx context.Context, caller *model.User, in RegisterInput) (*model.User, error) {
	if err := s.EnsureBootstrapAdmin(ctx); err != nil {
		return nil, err
	}
	if err := s.v.Validate(in); err != nil {
		return nil, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	requested := model.Role(in.Role)
	if !requested.Valid() {
		requested = model.RoleUser
	}

	guard := func(existing int, u *model.User) error {
		switch {
		case existing == 0:
			u.Role = model.RoleAdmin
		case caller.IsAdmin():
			u.Role = requested
		case s.opts.AllowUserSignup:
			u.Role = model.RoleUser
		case caller == nil:
			return apperr.ErrUnauthorized
		default:
			return apperr.Forbidden("admin role required")
		}
		return nil
	}

	created, err := s.users.Create(ctx, &model.User{
		Username:     in.Username,
		PasswordHash: hash,
		Role:         model.RoleUser,
	}, guard)
	if err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, apperr.Conflict("user already exists")
		}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.InfoContext(ctx, "user registered", "event", "user_registered", "user_id", created.ID, "role", created.Role)
	return created, nil
}

func (s *authService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := s.v.Validate(in); err != nil {
		return nil, err
	}
	if s.limiter != nil && !s.limiter.Allow(in.ClientKey+"|"+in.Username) {
		return nil, apperr.ErrRateLimited
	}
	if err := s.EnsureBootstrapAdmin(ctx); err != nil {
		return nil, err
	}

	u, err := s.users.FindByUsername(ctx, in.Username)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		auth.VerifyPassword(in.Password, s.dummyHash)
		return nil, apperr.Unauthorized("incorrect username or password")
	case err != nil:
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !auth.VerifyPassword(in.Password, u.PasswordHash) {
		return nil, apperr.Unauthorized("incorrect username or password")
	}

	token, exp, err := s.tokens.Issue(u.Username)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &LoginResult{AccessToken: token, TokenType: "bearer", ExpiresAt: exp, User: u}, nil
}

func (s *authService) ResolveToken(ctx context.Context, token string) (*model.User, error) {
	username, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperr.ErrUnauthorized
	}
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, fmt.Errorf("resolve token user: %w", err)
	}
	return u, nil
}

func (s *authService) ResolveOptional(ctx context.Context, token string) *model.User {
	if token == "" {
		return nil
	}
	u, err := s.ResolveToken(ctx, token)
	if err != nil {
		return nil
	}
	return u
}

// errUsersExist aborts the seed admin creation without surfacing an error.
var errUsersExist = errors.New("users already exist")

func (s *authService) EnsureBootstrapAdmin(ctx context.Context) error {
	if s.opts.BootstrapUsername == "" || s.opts.BootstrapPassword == "" {
		return nil
	}
	n, err := s.users.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil
	}

	hash, err := auth.HashPassword(s.opts.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	u, err := s.users.Create(ctx, &model.User{
		Username:     s.opts.BootstrapUsername,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
	}, func(existing int, _ *model.User) error {
		if existing > 0 {
			return errUsersExist
		}
		return nil
	})
	switch {
	case errors.Is(err, errUsersExist), errors.Is(err, repository.ErrUsernameTaken):
		return nil
	case err != nil:
		return fmt.Errorf("create bootstrap admin: %w", err)
	}
	s.log.InfoContext(ctx, "bootstrap admin created", "event", "bootstrap_admin_created", "user_id", u.ID)
	return nil
}

func hashPassword(pw string) (string, error) {
	hash, err := auth.HashPassword(pw)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", apperr.Validation("validation failed", map[string]string{"password": "must not exceed 72 bytes"})
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}
