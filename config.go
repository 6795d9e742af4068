package proxy

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Session store backend names accepted by SESSION_STORE.
const (
	SessionStoreMemory = "memory"
	SessionStoreValkey = "valkey"
)

// DefaultMaxFileSize is the upload size limit in bytes (8 MiB).
const DefaultMaxFileSize = 8 * 1024 * 1024

// Config holds the proxy configuration, loaded once at startup and
// immutable afterward.
//
// Environment variables:
//
//   - HOST, PORT: listen address (default 0.0.0.0:8000)
//   - BASE_URL: upstream platform base URL
//   - API_VERSION: upstream API version segment (default v2)
//   - CLIENT_ID, CLIENT_SECRET: client-credentials pair for the service token
//   - DISABLE_AUTH: development bypass; never enable in production
//   - VALIDATE_FORWARDED_TOKENS: probe forwarded tokens upstream before use
//   - MAX_FILE_SIZE: upload size limit in bytes (default 8388608)
//   - SESSION_STORE: "memory" or "valkey" (default memory)
//   - VALKEY_ADDRESS, VALKEY_PASSWORD, VALKEY_DB: valkey backend settings
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST: per-IP limits; RPS 0 disables
//   - TRUST_PROXY, TRUSTED_PROXY_COUNT: client IP extraction behind proxies
//   - UPSTREAM_TIMEOUT: outbound call timeout (default 30s)
//   - AUDIT_LOG_ENABLED: security audit logging
//   - LOG_LEVEL: debug, info, warn, or error (default info)
type Config struct {
	// Server settings
	Host string
	Port string

	// Upstream platform
	BaseURL         string
	APIVersion      string
	UpstreamTimeout time.Duration

	// Authentication
	ClientID                string
	ClientSecret            string
	DisableAuth             bool
	ValidateForwardedTokens bool

	// Uploads
	MaxFileSize int64

	// Session token store
	SessionStore   string
	ValkeyAddress  string
	ValkeyPassword string
	ValkeyDB       int

	// Rate limiting (per client IP); RPS of zero disables
	RateLimitRPS   int
	RateLimitBurst int

	// Proxy trust for client IP extraction
	TrustProxy        bool
	TrustedProxyCount int

	// Observability
	AuditLogEnabled bool
	LogLevel        string
}

// LoadConfig reads configuration from the environment, consulting a .env
// file when present. The result is not validated; call Validate before use.
func LoadConfig() *Config {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	return &Config{
		Host:                    getEnv("HOST", "0.0.0.0"),
		Port:                    getEnv("PORT", "8000"),
		BaseURL:                 getEnv("BASE_URL", "https://euwest.api.elasticpath.com"),
		APIVersion:              getEnv("API_VERSION", "v2"),
		UpstreamTimeout:         getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		ClientID:                getEnv("CLIENT_ID", ""),
		ClientSecret:            getEnv("CLIENT_SECRET", ""),
		DisableAuth:             getEnvBool("DISABLE_AUTH", false),
		ValidateForwardedTokens: getEnvBool("VALIDATE_FORWARDED_TOKENS", false),
		MaxFileSize:             getEnvInt64("MAX_FILE_SIZE", DefaultMaxFileSize),
		SessionStore:            getEnv("SESSION_STORE", SessionStoreMemory),
		ValkeyAddress:           getEnv("VALKEY_ADDRESS", ""),
		ValkeyPassword:          getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:                getEnvInt("VALKEY_DB", 0),
		RateLimitRPS:            getEnvInt("RATE_LIMIT_RPS", 0),
		RateLimitBurst:          getEnvInt("RATE_LIMIT_BURST", 20),
		TrustProxy:              getEnvBool("TRUST_PROXY", false),
		TrustedProxyCount:       getEnvInt("TRUSTED_PROXY_COUNT", 1),
		AuditLogEnabled:         getEnvBool("AUDIT_LOG_ENABLED", false),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks the configuration for values the proxy cannot start with.
func (c *Config) Validate() error {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("BASE_URL %q is not a valid absolute URL", c.BaseURL)
	}

	if !c.DisableAuth && (c.ClientID == "" || c.ClientSecret == "") {
		return fmt.Errorf("CLIENT_ID and CLIENT_SECRET are required unless DISABLE_AUTH is set")
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}

	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStoreValkey:
		if c.ValkeyAddress == "" {
			return fmt.Errorf("VALKEY_ADDRESS is required when SESSION_STORE is %q", SessionStoreValkey)
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q",
			SessionStoreMemory, SessionStoreValkey, c.SessionStore)
	}

	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %d", c.RateLimitRPS)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// TokenURL returns the provider's token endpoint.
func (c *Config) TokenURL() string {
	return c.BaseURL + "/oauth/access_token"
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
