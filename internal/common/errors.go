// Package common defines shared constants and sentinel errors used across
// the gateway, ledger and HTTP layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal         = errors.New("internal error")
	ErrorUnauthorized     = errors.New("unauthorized")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Login rejections.
	ErrRateLimited      = errors.New("too many login attempts")
	ErrMalformedMessage = errors.New("malformed sign-in message")
	ErrDomainMismatch   = errors.New("sign-in domain mismatch")
	ErrSignatureInvalid = errors.New("signature verification failed")
	ErrMessageExpired   = errors.New("sign-in message is not valid at this time")
	ErrUserBanned       = errors.New("user is banned")

	// Ledger errors.
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrExternalRefConflict = errors.New("external reference already used for a different movement")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
