package proxy

import (
	"net/http"
	"strings"
	"time"

	"github.com/commercekit/files-proxy/auth"
	"github.com/commercekit/files-proxy/security"
)

// SessionIDHeader names the caller's session for session-stored tokens.
const SessionIDHeader = "X-Session-ID"

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware emits one structured access log line per request and
// records request metrics.
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		h.logger.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", duration.Milliseconds(),
			"request_id", security.GetRequestID(r.Context()))
		h.inst.RecordHTTPRequest(r.Context(), r.URL.Path, r.Method, recorder.status, duration)
	})
}

// rateLimitMiddleware applies per-IP limits when a limiter is configured.
func (h *Handler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.rateLimiter != nil {
			clientIP := security.GetClientIP(r, h.config.TrustProxy, h.config.TrustedProxyCount)
			if !h.rateLimiter.Allow(clientIP) {
				h.auditor.LogRateLimitExceeded(clientIP)
				h.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// bearerTokenMiddleware extracts a caller-forwarded bearer token and the
// session ID into the request context. The token lives only in this
// request's context tree, so concurrent requests cannot observe each
// other's credentials. When forwarded-token validation is enabled, the
// token is probed upstream and rejected requests get a 401.
func (h *Handler) bearerTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if sessionID := r.Header.Get(SessionIDHeader); sessionID != "" {
			ctx = auth.ContextWithSessionID(ctx, sessionID)
		}

		if token, ok := bearerToken(r); ok {
			clientIP := security.GetClientIP(r, h.config.TrustProxy, h.config.TrustedProxyCount)

			if h.config.ValidateForwardedTokens && !h.config.DisableAuth {
				if err := h.upstream.ValidateToken(ctx, token); err != nil {
					h.auditor.LogTokenValidationFailed(token, clientIP)
					h.writeError(w, http.StatusUnauthorized, "invalid authentication credentials")
					return
				}
			}

			h.auditor.LogForwardedTokenUsed(token, clientIP)
			ctx = auth.ContextWithForwardedToken(ctx, token)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
