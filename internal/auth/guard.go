package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/userhub-api/backend/internal/store"
	"github.com/userhub-api/backend/types"
)

// UserLookup is the slice of the user repository the guard needs.
type UserLookup interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// Guard resolves a raw bearer credential to the user it belongs to. It
// takes its collaborators at construction and performs no side effects
// beyond the single repository read.
type Guard struct {
	tokens *TokenService
	users  UserLookup
}

func NewGuard(tokens *TokenService, users UserLookup) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// Authenticate verifies an access token and loads its user. All
// credential problems collapse into ErrUnauthenticated; repository
// outages surface separately as ErrRepositoryUnavailable.
func (g *Guard) Authenticate(ctx context.Context, rawToken string) (types.User, error) {
	if strings.TrimSpace(rawToken) == "" {
		return types.User{}, fmt.Errorf("%w: missing credential", ErrUnauthenticated)
	}

	claims, err := g.tokens.Verify(rawToken)
	if err != nil {
		return types.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	if claims.TokenType != TokenTypeAccess {
		return types.User{}, fmt.Errorf("%w: wrong token type", ErrUnauthenticated)
	}

	userID, err := claims.UserID()
	if err != nil {
		return types.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, fmt.Errorf("%w: user not found", ErrUnauthenticated)
		}
		return types.User{}, fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
	}

	return user, nil
}

// AuthenticateActive is the second-stage guard: it additionally
// requires the resolved account to be active.
func (g *Guard) AuthenticateActive(ctx context.Context, rawToken string) (types.User, error) {
	user, err := g.Authenticate(ctx, rawToken)
	if err != nil {
		return types.User{}, err
	}
	if !user.IsActive {
		return types.User{}, ErrInactiveAccount
	}
	return user, nil
}
