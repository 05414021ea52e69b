package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
	ErrValidation     = errors.New("validation failed")

	// Credential and account state errors
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrRateLimitExceeded  = errors.New("too many login attempts")

	// Avatar errors
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrPayloadTooLarge  = errors.New("payload too large")
)

// Uniqueness errors name the field that collided. Both wrap ErrConflict.
var (
	ErrUsernameTaken = fmt.Errorf("username already registered: %w", ErrConflict)
	ErrEmailTaken    = fmt.Errorf("email already registered: %w", ErrConflict)
)

// RateLimitError is returned when the login limiter rejects a request.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimitExceeded, e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is(err, ErrRateLimitExceeded) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}
