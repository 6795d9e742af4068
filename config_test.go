package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Host:         "0.0.0.0",
		Port:         "8000",
		BaseURL:      "https://euwest.api.elasticpath.com",
		APIVersion:   "v2",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		MaxFileSize:  DefaultMaxFileSize,
		SessionStore: SessionStoreMemory,
		LogLevel:     "info",
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "https://euwest.api.elasticpath.com", cfg.BaseURL)
	assert.Equal(t, "v2", cfg.APIVersion)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
	assert.Equal(t, SessionStoreMemory, cfg.SessionStore)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DisableAuth)
	assert.False(t, cfg.ValidateForwardedTokens)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("BASE_URL", "https://useast.api.elasticpath.com")
	t.Setenv("CLIENT_ID", "env-client")
	t.Setenv("CLIENT_SECRET", "env-secret")
	t.Setenv("MAX_FILE_SIZE", "1048576")
	t.Setenv("SESSION_STORE", "valkey")
	t.Setenv("VALKEY_ADDRESS", "localhost:6379")
	t.Setenv("RATE_LIMIT_RPS", "10")
	t.Setenv("UPSTREAM_TIMEOUT", "10s")
	t.Setenv("DISABLE_AUTH", "true")

	cfg := LoadConfig()

	assert.Equal(t, "https://useast.api.elasticpath.com", cfg.BaseURL)
	assert.Equal(t, "env-client", cfg.ClientID)
	assert.Equal(t, "env-secret", cfg.ClientSecret)
	assert.Equal(t, int64(1048576), cfg.MaxFileSize)
	assert.Equal(t, SessionStoreValkey, cfg.SessionStore)
	assert.Equal(t, "localhost:6379", cfg.ValkeyAddress)
	assert.Equal(t, 10, cfg.RateLimitRPS)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.True(t, cfg.DisableAuth)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_FILE_SIZE", "not-a-number")
	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	t.Setenv("DISABLE_AUTH", "maybe")

	cfg := LoadConfig()

	assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	assert.False(t, cfg.DisableAuth)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"relative base url", func(c *Config) { c.BaseURL = "not-a-url" }, "BASE_URL"},
		{"empty base url", func(c *Config) { c.BaseURL = "" }, "BASE_URL"},
		{"missing credentials", func(c *Config) { c.ClientID = "" }, "CLIENT_ID"},
		{"missing secret", func(c *Config) { c.ClientSecret = "" }, "CLIENT_ID"},
		{"disable auth skips credential check", func(c *Config) {
			c.ClientID = ""
			c.ClientSecret = ""
			c.DisableAuth = true
		}, ""},
		{"non-positive file size", func(c *Config) { c.MaxFileSize = 0 }, "MAX_FILE_SIZE"},
		{"unknown session store", func(c *Config) { c.SessionStore = "redis" }, "SESSION_STORE"},
		{"valkey without address", func(c *Config) { c.SessionStore = SessionStoreValkey }, "VALKEY_ADDRESS"},
		{"valkey with address", func(c *Config) {
			c.SessionStore = SessionStoreValkey
			c.ValkeyAddress = "localhost:6379"
		}, ""},
		{"negative rate limit", func(c *Config) { c.RateLimitRPS = -1 }, "RATE_LIMIT_RPS"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_TokenURL(t *testing.T) {
	cfg := validTestConfig()
	assert.Equal(t, "https://euwest.api.elasticpath.com/oauth/access_token", cfg.TokenURL())
}

func TestConfig_ListenAddr(t *testing.T) {
	cfg := validTestConfig()
	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr())
}
