// Package storage defines the session token store interface used by the
// token resolver, decoupling the auth core from the backing implementation.
// The memory subpackage suits single-instance deployments; the valkey
// subpackage provides a shared backend for horizontally scaled ones.
package storage

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned when no token is stored for a session.
var ErrNotFound = errors.New("session token not found")

// SessionTokenStore stores caller-supplied tokens keyed by session ID.
// Implementations must be safe for concurrent use.
type SessionTokenStore interface {
	// Save stores a token for a session, replacing any previous one.
	Save(ctx context.Context, sessionID string, token *oauth2.Token) error

	// Get returns the stored token, or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*oauth2.Token, error)

	// Delete removes a session's token. Deleting an absent session is not
	// an error.
	Delete(ctx context.Context, sessionID string) error
}
