// Package valkey provides a Valkey-backed session token store for
// deployments that scale the proxy horizontally and need callers' session
// tokens visible to every instance. Valkey is wire-compatible with Redis.
//
// Keys use a configurable prefix (default "filesproxy:") so the instance
// can be shared with other applications:
//
//	{prefix}session:{sessionID} -> JSON(oauth2.Token)
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
	"golang.org/x/oauth2"

	"github.com/commercekit/files-proxy/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys.
	DefaultKeyPrefix = "filesproxy:"

	// defaultSessionTTL bounds retention of tokens that carry no expiry.
	defaultSessionTTL = 24 * time.Hour

	// connectionVerifyTimeout bounds the startup PING.
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds Valkey connection settings.
type Config struct {
	// Address is the host:port of the Valkey instance (required).
	Address string

	// Password is the optional AUTH password.
	Password string

	// DB selects the logical database.
	DB int

	// KeyPrefix namespaces all keys. Defaults to DefaultKeyPrefix.
	KeyPrefix string

	// TLS enables TLS when non-nil.
	TLS *tls.Config

	// SessionTTL bounds retention of tokens without their own expiry.
	// Defaults to 24 hours.
	SessionTTL time.Duration

	// Logger for structured logging. Defaults to slog.Default when nil.
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of storage.SessionTokenStore.
type Store struct {
	client     valkeygo.Client
	prefix     string
	sessionTTL time.Duration
	logger     *slog.Logger
}

// Compile-time interface check.
var _ storage.SessionTokenStore = (*Store)(nil)

// New connects to Valkey and verifies the connection with a PING.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey session store",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:     client,
		prefix:     prefix,
		sessionTTL: sessionTTL,
		logger:     logger,
	}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() {
	s.client.Close()
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

// Save stores a token for a session with a TTL derived from the token's
// expiry, replacing any previous one.
func (s *Store) Save(ctx context.Context, sessionID string, token *oauth2.Token) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("token with an access token is required")
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal session token: %w", err)
	}

	ttl := s.sessionTTL
	if !token.Expiry.IsZero() {
		if remaining := time.Until(token.Expiry); remaining > 0 {
			ttl = remaining
		} else {
			return fmt.Errorf("session token already expired")
		}
	}

	key := s.sessionKey(sessionID)
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save session token: %w", err)
	}
	return nil
}

// Get returns the stored token, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*oauth2.Token, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.sessionKey(sessionID)).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session token: %w", err)
	}
	return &token, nil
}

// Delete removes a session's token.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.sessionKey(sessionID)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete session token: %w", err)
	}
	return nil
}
