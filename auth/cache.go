package auth

import (
	"sync"
	"time"
)

// TokenCache holds the service's most recent client-credentials token.
// It never refreshes on its own; the issuer decides when to exchange.
//
// The cache is safe for concurrent use. Readers see either the previous
// complete token or the new complete token, never a partial write.
type TokenCache struct {
	mu    sync.RWMutex
	token AccessToken

	// now is the time source, overridable for deterministic tests.
	now func() time.Time
}

// NewTokenCache creates an empty cache using the real clock.
func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// NewTokenCacheWithClock creates an empty cache with a custom time source.
func NewTokenCacheWithClock(now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	return &TokenCache{now: now}
}

// Get returns the cached token iff one is present and unexpired.
func (c *TokenCache) Get() (AccessToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.token.Valid(c.now()) {
		return AccessToken{}, false
	}
	return c.token, true
}

// Set atomically replaces the cached token. Last writer wins; there is no
// merge. Concurrent issuers that both performed an exchange each end up with
// a valid token regardless of write order.
func (c *TokenCache) Set(token AccessToken) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Clear drops the cached token. Used when the upstream reports the token as
// no longer acceptable.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	c.token = AccessToken{}
	c.mu.Unlock()
}
