package domain

import "errors"

// Error kinds shared across services and handlers. Services wrap these with
// context via fmt.Errorf("...: %w", Err*); the transport layer maps each kind
// to a fixed HTTP status with errors.Is and never echoes internal detail.
var (
	// ErrNotFound indicates the requested resource does not exist within the
	// caller's visible scope. Cross-tenant lookups also report ErrNotFound so
	// existence under another tenant is never revealed.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation: duplicate username,
	// tenant name/domain, or license key.
	ErrConflict = errors.New("already exists")

	// ErrUnauthenticated indicates a missing, invalid, or terminated session.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnauthorized indicates an authenticated caller with insufficient
	// role or a tenant mismatch.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput indicates a malformed key or missing field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates a storage or unexpected failure. The original
	// error is logged server-side only.
	ErrInternal = errors.New("internal error")
)
