package auth

import "context"

// contextKey is a private type for context keys defined in this package.
type contextKey int

const (
	forwardedTokenKey contextKey = iota
	sessionIDKey
)

// ContextWithForwardedToken returns a context carrying a caller-forwarded
// bearer token. The token is scoped to this request's context tree and is
// invisible to concurrently processed requests.
func ContextWithForwardedToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, forwardedTokenKey, token)
}

// ForwardedTokenFromContext returns the caller-forwarded token, if any.
func ForwardedTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(forwardedTokenKey).(string)
	return token, ok && token != ""
}

// ContextWithSessionID returns a context carrying the caller's session
// identifier, used to look up session-stored tokens.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext returns the caller's session identifier, if any.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}
