package auth

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials indicates the client id or secret is absent.
// The issuer fails fast with this error before any network access.
var ErrMissingCredentials = errors.New("client id and client secret are required")

// ErrInvalidToken indicates a forwarded token was rejected by the upstream
// probe call. Callers should surface this as an unauthorized response.
var ErrInvalidToken = errors.New("invalid or expired token")

// AuthenticationError indicates the upstream rejected the client-credentials
// exchange. Description carries the human-readable reason parsed from the
// upstream error body when one was present.
type AuthenticationError struct {
	// Description is the upstream error_description, or the error code, or
	// the transport error text when no body could be parsed.
	Description string

	// StatusCode is the upstream HTTP status, or 0 for transport failures.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("authentication failed: %s", e.Description)
}

// Unwrap returns the underlying cause.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
