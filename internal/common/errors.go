// Package common defines shared constants and sentinel errors used across
// the travel planner server. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound          = errors.New("not found")
	ErrorAlreadyExists     = errors.New("already exists")
	ErrFingerprintMismatch = errors.New("refresh fingerprint mismatch")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")
	ErrValidation = errors.New("validation error")

	// Session errors.
	ErrEmailAlreadyExists  = errors.New("email already exists")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrRefreshTokenRevoked = errors.New("session expired, please log in again")

	// Social provider errors.
	ErrInvalidProviderToken = errors.New("invalid provider token")
	ErrProviderUnavailable  = errors.New("provider unavailable")

	// Token errors.
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenKindMismatch     = errors.New("token kind mismatch")

	// Guard errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
