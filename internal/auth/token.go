package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/userhub-api/backend/config"
)

// minSecretBytes is the smallest signing secret accepted at startup.
const minSecretBytes = 32

// refreshTokenTTL is the fixed lifetime of refresh tokens.
const refreshTokenTTL = 7 * 24 * time.Hour

// TokenType discriminates access tokens from refresh tokens. Tokens of
// the wrong type must be rejected at the point of use.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the signed contents of a token.
type Claims struct {
	TokenType TokenType `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim as a user id.
func (c Claims) UserID() (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(c.Subject))
	if err != nil || id < 1 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}

// TokenService issues and verifies signed, time-bound tokens. It holds
// no mutable state and performs no I/O, so it is safe for concurrent
// use by any number of handlers.
type TokenService struct {
	secret    []byte
	method    *jwt.SigningMethodHMAC
	accessTTL time.Duration
}

// NewTokenService validates the signing configuration once at startup.
// A short secret or a non-HMAC algorithm is a construction error, not a
// first-use surprise.
func NewTokenService(cfg config.JWTConfig) (*TokenService, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}

	var method *jwt.SigningMethodHMAC
	switch strings.ToUpper(strings.TrimSpace(cfg.Algorithm)) {
	case "HS256", "":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.Algorithm)
	}

	accessTTL := time.Duration(cfg.AccessTokenExpireMinutes) * time.Minute
	if accessTTL <= 0 {
		return nil, errors.New("access token expiry must be positive")
	}

	return &TokenService{
		secret:    []byte(cfg.Secret),
		method:    method,
		accessTTL: accessTTL,
	}, nil
}

// AccessTTL reports the configured access-token lifetime.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// IssueAccess signs a short-lived access token for the given user.
func (s *TokenService) IssueAccess(userID int, ttl time.Duration) (string, error) {
	return s.issue(userID, ttl, TokenTypeAccess)
}

// IssueRefresh signs a refresh token with the fixed 7-day lifetime.
func (s *TokenService) IssueRefresh(userID int) (string, error) {
	return s.issue(userID, refreshTokenTTL, TokenTypeRefresh)
}

func (s *TokenService) issue(userID int, ttl time.Duration, tokenType TokenType) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(s.method, claims)
	return token.SignedString(s.secret)
}

// Verify decodes the token and checks its signature and expiry. It does
// not enforce the token type; call sites require different types, so
// that check belongs to them.
func (s *TokenService) Verify(tokenString string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return Claims{}, ErrTokenInvalid
	}

	// The library already rejects expired tokens; check again so a
	// missing exp claim or a library behavior change cannot widen the
	// window.
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(time.Now()) {
		return Claims{}, ErrTokenExpired
	}

	return claims, nil
}
