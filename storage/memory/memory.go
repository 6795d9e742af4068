// Package memory provides an in-memory session token store. It is suitable
// for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/commercekit/files-proxy/storage"
)

// defaultCleanupInterval is how often expired session tokens are swept.
const defaultCleanupInterval = time.Minute

// defaultSessionTTL bounds how long an unused session token is retained when
// the token itself carries no expiry.
const defaultSessionTTL = 24 * time.Hour

// entry is a stored token plus its retention deadline.
type entry struct {
	token     *oauth2.Token
	expiresAt time.Time
}

// Store is an in-memory implementation of storage.SessionTokenStore with
// TTL-based cleanup.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry

	sessionTTL  time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
	logger      *slog.Logger
}

// Compile-time interface check.
var _ storage.SessionTokenStore = (*Store)(nil)

// New creates a store with the default cleanup interval (1 minute).
func New(logger *slog.Logger) *Store {
	return NewWithInterval(defaultCleanupInterval, logger)
}

// NewWithInterval creates a store with a custom cleanup interval. An
// interval of zero or less disables background cleanup.
func NewWithInterval(interval time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		entries:     make(map[string]entry),
		sessionTTL:  defaultSessionTTL,
		stopCleanup: make(chan struct{}),
		logger:      logger,
	}
	if interval > 0 {
		go s.cleanupLoop(interval)
	}
	return s
}

// Save stores a token for a session, replacing any previous one.
func (s *Store) Save(_ context.Context, sessionID string, token *oauth2.Token) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("token with an access token is required")
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(s.sessionTTL)
	}

	s.mu.Lock()
	s.entries[sessionID] = entry{token: token, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

// Get returns the stored token, or storage.ErrNotFound when absent or
// past its retention deadline.
func (s *Store) Get(_ context.Context, sessionID string) (*oauth2.Token, error) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, storage.ErrNotFound
	}
	return e.token, nil
}

// Delete removes a session's token.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, expired entries included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stop terminates the background cleanup goroutine. Safe to call more than
// once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.cleanupExpired(); removed > 0 {
				s.logger.Debug("Cleaned up expired session tokens", "removed", removed)
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanupExpired removes entries past their retention deadline and returns
// how many were dropped.
func (s *Store) cleanupExpired() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
