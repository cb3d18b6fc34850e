// Package common defines shared constants and sentinel errors used across
// the dealerdesk server packages. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrSelfDeletion   = errors.New("cannot delete your own account")

	// Auth errors (invalid, malformed, tampered or expired token).
	ErrInvalidToken = errors.New("invalid token")

	// Password reset lifecycle errors.
	ErrResetTokenNotFound = errors.New("reset token not found")
	ErrResetTokenUsed     = errors.New("reset token already used")
	ErrResetTokenExpired  = errors.New("reset token expired")
)
