package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/commercekit/files-proxy/instrumentation"
)

// defaultExchangeTimeout bounds the client-credentials POST when no custom
// HTTP client is supplied.
const defaultExchangeTimeout = 30 * time.Second

// maxErrorBodySize caps how much of an upstream error body is read when
// extracting a description.
const maxErrorBodySize = 64 * 1024

// IssuerConfig holds the configuration for a token issuer.
type IssuerConfig struct {
	// TokenURL is the absolute URL of the provider's token endpoint,
	// e.g. https://euwest.api.elasticpath.com/oauth/access_token.
	TokenURL string

	// ClientID and ClientSecret are the service's static credentials.
	// Issue fails with ErrMissingCredentials when either is empty.
	ClientID     string
	ClientSecret string

	// Cache receives issued tokens. A fresh cache is created when nil.
	Cache *TokenCache

	// HTTPClient performs the exchange. Defaults to a client with a 30s
	// timeout when nil.
	HTTPClient *http.Client

	// Logger for structured logging. Defaults to slog.Default when nil.
	Logger *slog.Logger

	// Instrumentation records token-issue metrics. Optional.
	Instrumentation *instrumentation.Instrumentation

	// Now is the time source, overridable for deterministic tests.
	Now func() time.Time
}

// Issuer performs the OAuth2 client-credentials exchange and maintains the
// service token cache. Safe for concurrent use: the cache lock is held only
// around cache reads and writes, never across the network exchange, so two
// goroutines that both observe an expired token may both exchange. That
// duplicate work is bounded and harmless; the last successful Set wins and
// both callers receive a valid token.
type Issuer struct {
	tokenURL     string
	clientID     string
	clientSecret string
	cache        *TokenCache
	httpClient   *http.Client
	logger       *slog.Logger
	inst         *instrumentation.Instrumentation
	now          func() time.Time
}

// IssueResult is the outcome of a successful Issue call.
type IssueResult struct {
	// Token is the usable access token.
	Token AccessToken

	// Cached is true when the token came from the cache without a network
	// exchange.
	Cached bool

	// TokenType is the provider-reported type, normally "bearer".
	TokenType string

	// ExpiresIn is the provider-reported lifetime in seconds for fresh
	// tokens, or the remaining margin-adjusted lifetime for cached ones.
	ExpiresIn int64
}

// tokenResponse is the provider's token endpoint success body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// tokenErrorResponse covers the error shapes the provider emits: the OAuth
// error object and the JSON:API errors array.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Errors           []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// NewIssuer creates a token issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	if _, err := url.Parse(cfg.TokenURL); err != nil {
		return nil, fmt.Errorf("invalid token URL: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	cache := cfg.Cache
	if cache == nil {
		cache = NewTokenCacheWithClock(now)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultExchangeTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Issuer{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		cache:        cache,
		httpClient:   httpClient,
		logger:       logger,
		inst:         cfg.Instrumentation,
		now:          now,
	}, nil
}

// Cache returns the issuer's token cache.
func (i *Issuer) Cache() *TokenCache {
	return i.cache
}

// Issue returns a usable service token. Without forceRefresh a valid cached
// token is returned immediately with no network call. Otherwise it performs
// a synchronous client-credentials exchange, stores the result, and returns
// it. Nothing is cached on failure, and there is no automatic retry.
func (i *Issuer) Issue(ctx context.Context, forceRefresh bool) (*IssueResult, error) {
	if i.clientID == "" || i.clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	if !forceRefresh {
		if tok, ok := i.cache.Get(); ok {
			i.inst.RecordTokenIssue(ctx, true, false)
			return &IssueResult{
				Token:     tok,
				Cached:    true,
				TokenType: "bearer",
				ExpiresIn: int64(tok.TimeToExpiry(i.now()).Seconds()),
			}, nil
		}
	}

	result, err := i.exchange(ctx)
	i.inst.RecordTokenIssue(ctx, false, err != nil)
	return result, err
}

// exchange performs the form-encoded POST against the token endpoint.
// The cache lock is not held here; only the final Set is synchronized.
func (i *Issuer) exchange(ctx context.Context) (*IssueResult, error) {
	form := url.Values{}
	form.Set("client_id", i.clientID)
	form.Set("client_secret", i.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		i.logger.Error("Token exchange transport failure", "token_url", i.tokenURL, "error", err)
		return nil, &AuthenticationError{Description: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		desc := parseTokenErrorDescription(resp)
		i.logger.Warn("Token exchange rejected by provider",
			"status", resp.StatusCode,
			"description", desc)
		return nil, &AuthenticationError{Description: desc, StatusCode: resp.StatusCode}
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &AuthenticationError{
			Description: fmt.Sprintf("malformed token response: %v", err),
			StatusCode:  resp.StatusCode,
			Err:         err,
		}
	}
	if body.AccessToken == "" {
		return nil, &AuthenticationError{
			Description: "token response missing access_token",
			StatusCode:  resp.StatusCode,
		}
	}

	expiresIn := body.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}

	now := i.now()
	token := NewAccessToken(body.AccessToken, now, expiresIn)
	i.cache.Set(token)

	tokenType := body.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}

	i.logger.Debug("Issued service token",
		"expires_in", expiresIn,
		"expires_at", token.ExpiresAt)

	return &IssueResult{
		Token:     token,
		Cached:    false,
		TokenType: tokenType,
		ExpiresIn: expiresIn,
	}, nil
}

// parseTokenErrorDescription extracts a human-readable reason from an error
// response body, falling back to the HTTP status text.
func parseTokenErrorDescription(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil || len(raw) == 0 {
		return http.StatusText(resp.StatusCode)
	}

	var body tokenErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return http.StatusText(resp.StatusCode)
	}

	switch {
	case body.ErrorDescription != "":
		return body.ErrorDescription
	case body.Error != "":
		return body.Error
	case len(body.Errors) > 0 && body.Errors[0].Detail != "":
		return body.Errors[0].Detail
	case len(body.Errors) > 0 && body.Errors[0].Title != "":
		return body.Errors[0].Title
	default:
		return http.StatusText(resp.StatusCode)
	}
}
