package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/userhub-api/backend/internal/store"
	"github.com/userhub-api/backend/types"
)

// Repository is the slice of the user repository the auth flows need.
type Repository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string) (types.User, error)
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Service orchestrates the credential verification, token refresh, and
// password change flows.
type Service struct {
	tokens *TokenService
	users  Repository
}

func NewService(tokens *TokenService, users Repository) *Service {
	return &Service{tokens: tokens, users: users}
}

// Tokens exposes the underlying token service for wiring.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Login verifies an email/password pair and issues a token pair. An
// unknown email and a wrong password produce the same error, so a
// caller cannot probe which accounts exist.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, types.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, types.User{}, ErrInvalidCredentials
		}
		return TokenPair{}, types.User{}, fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return TokenPair{}, types.User{}, ErrInvalidCredentials
	}

	accessToken, err := s.tokens.IssueAccess(user.ID, s.tokens.AccessTTL())
	if err != nil {
		return TokenPair{}, types.User{}, err
	}
	refreshToken, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return TokenPair{}, types.User{}, err
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, user, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// presented refresh token stays valid until its own expiry; there is no
// rotation and no revocation list.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, types.User, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return "", types.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	if claims.TokenType != TokenTypeRefresh {
		return "", types.User{}, fmt.Errorf("%w: wrong token type", ErrUnauthenticated)
	}

	userID, err := claims.UserID()
	if err != nil {
		return "", types.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", types.User{}, fmt.Errorf("%w: user not found", ErrUnauthenticated)
		}
		return "", types.User{}, fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
	}

	accessToken, err := s.tokens.IssueAccess(user.ID, s.tokens.AccessTTL())
	if err != nil {
		return "", types.User{}, err
	}

	return accessToken, user, nil
}

// ChangePassword verifies the current password and persists a new hash.
// The user is re-fetched so a row deleted between authentication and
// this call surfaces as store.ErrNotFound.
func (s *Service) ChangePassword(ctx context.Context, userID int, current, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
	}

	if !VerifyPassword(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hashed, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	if _, err := s.users.UpdatePassword(ctx, user.ID, hashed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
	}
	return nil
}
