package errors

import (
	"errors"
)

var (
	ErrEmailAlreadyInUse    = errors.New("email already in use")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountLocked        = errors.New("account locked")
	ErrTooManyLoginAttempts = errors.New("too many login attempts")
	ErrUserNotFound         = errors.New("user not found")
	ErrPasswordTooLong      = errors.New("password too long")

	ErrRefreshTokenMissing = errors.New("refresh token missing")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrNoActiveSession     = errors.New("no active session")
	// ErrRefreshTokenReused means a refresh token other than the registered one
	// was presented; the session has been revoked.
	ErrRefreshTokenReused = errors.New("refresh token reuse detected")

	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenExpired   = errors.New("token expired")
)

// IsUnauthorized reports whether err belongs to the family of failures that
// the transport layer collapses into a single 401 response.
func IsUnauthorized(err error) bool {
	for _, target := range []error{
		ErrInvalidCredentials,
		ErrRefreshTokenMissing,
		ErrInvalidRefreshToken,
		ErrNoActiveSession,
		ErrRefreshTokenReused,
		ErrTokenMalformed,
		ErrTokenInvalid,
		ErrTokenExpired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
