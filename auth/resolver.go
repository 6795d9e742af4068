package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/commercekit/files-proxy/storage"
)

// DevelopmentToken is the sentinel credential used when authentication is
// disabled. The bypass exists for local development only and must never be
// enabled in a production deployment.
const DevelopmentToken = "development-token"

// ResolverConfig holds the configuration for a token resolver.
type ResolverConfig struct {
	// Issuer mints service tokens when no caller credential applies.
	Issuer *Issuer

	// Sessions is an optional session-scoped token store consulted between
	// the forwarded token and the service token.
	Sessions storage.SessionTokenStore

	// DisableAuth short-circuits all resolution to DevelopmentToken.
	DisableAuth bool

	// Logger for structured logging. Defaults to slog.Default when nil.
	Logger *slog.Logger
}

// Resolver determines, per request, which token an upstream call presents.
//
// Precedence:
//
//  1. An explicit token passed by the caller (tool argument).
//  2. A forwarded token carried in the request context.
//  3. A session-stored token for the caller's session, when a session store
//     is configured.
//  4. The service's own client-credentials token, cached or freshly minted.
//
// All per-caller state flows through the context or explicit parameters, so
// concurrent requests cannot observe each other's credentials.
type Resolver struct {
	issuer      *Issuer
	sessions    storage.SessionTokenStore
	disableAuth bool
	logger      *slog.Logger
}

// NewResolver creates a token resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Issuer == nil && !cfg.DisableAuth {
		return nil, fmt.Errorf("issuer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		issuer:      cfg.Issuer,
		sessions:    cfg.Sessions,
		disableAuth: cfg.DisableAuth,
		logger:      logger,
	}, nil
}

// Resolve returns the token the upstream call for this request must present.
// explicit, when non-empty, wins over everything except the development
// bypass.
func (r *Resolver) Resolve(ctx context.Context, explicit string) (string, error) {
	if r.disableAuth {
		return DevelopmentToken, nil
	}

	if explicit != "" {
		return explicit, nil
	}

	if token, ok := ForwardedTokenFromContext(ctx); ok {
		return token, nil
	}

	if r.sessions != nil {
		if sessionID, ok := SessionIDFromContext(ctx); ok {
			tok, err := r.sessions.Get(ctx, sessionID)
			if err != nil {
				// Session lookup failures degrade to the service token
				// rather than failing the request.
				r.logger.Warn("Session token lookup failed", "error", err)
			} else if tok != nil && tok.AccessToken != "" {
				return tok.AccessToken, nil
			}
		}
	}

	result, err := r.issuer.Issue(ctx, false)
	if err != nil {
		return "", fmt.Errorf("failed to obtain service token: %w", err)
	}
	return result.Token.Value, nil
}
