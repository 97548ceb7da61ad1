// Package common defines shared constants and sentinel errors used across
// client and server layers of gophauth. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound        = errors.New("not found")
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// Service-level errors (generic/internal flow control).
	ErrorInternal   = errors.New("internal error")
	ErrorValidation = errors.New("validation error")

	// Authentication flow errors surfaced to callers.
	ErrIdentityConflict   = errors.New("identity already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")

	// Diagnostic causes wrapped together with ErrInvalidToken. They are
	// logged but never sent to the client as distinct conditions.
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenSignature    = errors.New("token signature mismatch")
	ErrTokenKindMismatch = errors.New("token kind mismatch")
	ErrTokenRevoked      = errors.New("token revoked")
	ErrIdentityNotFound  = errors.New("identity not found")
)
