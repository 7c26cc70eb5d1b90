package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/domain"
	"chatcore/internal/security"
)

// AuthService handles registration, login, and logout.
type AuthService struct {
	users       domain.UserRepository
	tokens      *security.TokenService
	hash        *security.PasswordHasher
	accessTTL   time.Duration
	rememberTTL time.Duration
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService, hash *security.PasswordHasher, accessTTL, rememberTTL time.Duration) *AuthService {
	return &AuthService{
		users:       users,
		tokens:      tokens,
		hash:        hash,
		accessTTL:   accessTTL,
		rememberTTL: rememberTTL,
	}
}

type RegisterInput struct {
	Username string
	Email    *string
	Password string
}

type LoginInput struct {
	Username   string
	Password   string
	RememberMe bool
}

type TokenResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int64          `json:"expires_in"`
	User        domain.Profile `json:"user"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}

	// Check username uniqueness
	if err := s.ensureFree(s.users.GetByUsername(ctx, in.Username)); err != nil {
		return nil, err
	}

	// Check email uniqueness (if provided)
	if in.Email != nil && *in.Email != "" {
		if err := s.ensureFree(s.users.GetByEmail(ctx, *in.Email)); err != nil {
			return nil, err
		}
	} else {
		in.Email = nil
	}

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:             uuid.NewString(),
		Username:       in.Username,
		Email:          in.Email,
		HashedPassword: hashed,
		IsActive:       true,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ensureFree turns the result of a uniqueness lookup into ErrConflict when
// a user already holds the value.
func (s *AuthService) ensureFree(existing *domain.User, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("check uniqueness: %w", err)
	case existing != nil:
		return domain.ErrConflict
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, in.Username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive {
		return nil, domain.ErrForbidden
	}

	if err := s.hash.Verify(in.Password, user.HashedPassword); err != nil {
		return nil, domain.ErrUnauthorized
	}

	ttl := s.accessTTL
	if in.RememberMe {
		ttl = s.rememberTTL
	}
	token, err := s.tokens.IssueWithTTL(user.Username, ttl)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		User:        user.Profile(),
	}, nil
}

// Authenticate resolves a bearer token to an active user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	username, err := s.tokens.Subject(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive {
		return nil, domain.ErrForbidden
	}
	return user, nil
}

// Logout clears the persisted connection flag. A live socket, if any, is
// left to close on its own.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.users.SetPresence(ctx, userID, nil)
}
