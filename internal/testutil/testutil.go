// Package testutil provides testing utilities shared across the proxy's
// test suites.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// MockTime provides a controllable time source for deterministic testing.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider.
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time.
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration.
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value.
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// TokenEndpoint is an httptest server that mimics a client-credentials
// token endpoint and counts exchanges.
type TokenEndpoint struct {
	Server *httptest.Server

	mu        sync.Mutex
	exchanges int

	// AccessToken and ExpiresIn shape the next successful response.
	AccessToken string
	ExpiresIn   int64

	// FailStatus and FailBody, when FailStatus is non-zero, make the
	// endpoint return an error response instead.
	FailStatus int
	FailBody   string
}

// NewTokenEndpoint starts a mock token endpoint. Callers must Close it.
func NewTokenEndpoint() *TokenEndpoint {
	te := &TokenEndpoint{
		AccessToken: "test-access-token",
		ExpiresIn:   3600,
	}
	te.Server = httptest.NewServer(http.HandlerFunc(te.handle))
	return te
}

func (te *TokenEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	te.mu.Lock()
	te.exchanges++
	failStatus, failBody := te.FailStatus, te.FailBody
	accessToken, expiresIn := te.AccessToken, te.ExpiresIn
	te.mu.Unlock()

	if failStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(failStatus)
		_, _ = w.Write([]byte(failBody))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
}

// Exchanges returns the number of token requests received.
func (te *TokenEndpoint) Exchanges() int {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.exchanges
}

// SetResponse updates the next successful response.
func (te *TokenEndpoint) SetResponse(accessToken string, expiresIn int64) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.AccessToken = accessToken
	te.ExpiresIn = expiresIn
}

// SetFailure makes subsequent requests fail with the given status and body.
func (te *TokenEndpoint) SetFailure(status int, body string) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.FailStatus = status
	te.FailBody = body
}

// URL returns the endpoint URL.
func (te *TokenEndpoint) URL() string {
	return te.Server.URL
}

// Close shuts down the underlying server.
func (te *TokenEndpoint) Close() {
	te.Server.Close()
}

// GenerateTestToken creates a test OAuth2 token.
func GenerateTestToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: GenerateRandomString(32),
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(1 * time.Hour),
	}
}

// GenerateTestTokenWithExpiry creates a test OAuth2 token with a specific
// expiry.
func GenerateTestTokenWithExpiry(expiry time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: GenerateRandomString(32),
		TokenType:   "Bearer",
		Expiry:      expiry,
	}
}

// GenerateRandomString generates a random base64-encoded string.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}
