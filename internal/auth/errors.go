package auth

import "errors"

// Error taxonomy for the auth core. Every failure an operation can
// surface maps to exactly one of these sentinels; callers branch with
// errors.Is and the HTTP layer owns the status-code mapping.
var (
	// ErrInvalidCredentials covers both unknown email and wrong
	// password, so login responses never reveal which check failed.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrTokenInvalid means the token is malformed, unsigned, or its
	// signature does not verify.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired means the token is structurally valid but past
	// its expiry.
	ErrTokenExpired = errors.New("token has expired")

	// ErrUnauthenticated is the umbrella failure surfaced by the guard
	// and refresh flow: missing credential, invalid or expired token,
	// wrong token type, unresolvable subject, or unknown user.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInactiveAccount means the caller authenticated but the account
	// is deactivated. Distinct status class from ErrUnauthenticated.
	ErrInactiveAccount = errors.New("inactive user")

	// ErrRepositoryUnavailable wraps user-store I/O failures. Never
	// mapped to ErrUnauthenticated: an outage is not a bad credential.
	ErrRepositoryUnavailable = errors.New("user repository unavailable")
)
