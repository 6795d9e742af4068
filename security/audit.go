package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging. Token material is hashed before
// logging so credentials never appear in log output.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{logger: logger, enabled: enabled}
}

// LogServiceTokenIssued records that a service token was minted via the
// client-credentials grant.
func (a *Auditor) LogServiceTokenIssued(clientID string, expiresAt time.Time) {
	if a == nil || !a.enabled {
		return
	}
	a.logger.Info("security_audit",
		"event_type", "service_token_issued",
		"client_id", clientID,
		"expires_at", expiresAt,
		"timestamp", time.Now(),
	)
}

// LogForwardedTokenUsed records that a caller-forwarded token was presented
// upstream.
func (a *Auditor) LogForwardedTokenUsed(token, ipAddress string) {
	if a == nil || !a.enabled {
		return
	}
	a.logger.Info("security_audit",
		"event_type", "forwarded_token_used",
		"token_hash", HashForLogging(token),
		"ip_address", ipAddress,
		"timestamp", time.Now(),
	)
}

// LogTokenValidationFailed records a rejected forwarded token.
func (a *Auditor) LogTokenValidationFailed(token, ipAddress string) {
	if a == nil || !a.enabled {
		return
	}
	a.logger.Warn("security_audit",
		"event_type", "token_validation_failed",
		"token_hash", HashForLogging(token),
		"ip_address", ipAddress,
		"timestamp", time.Now(),
	)
}

// LogRateLimitExceeded records a rate limit violation.
func (a *Auditor) LogRateLimitExceeded(ipAddress string) {
	if a == nil || !a.enabled {
		return
	}
	a.logger.Warn("security_audit",
		"event_type", "rate_limit_exceeded",
		"ip_address", ipAddress,
		"timestamp", time.Now(),
	)
}

// HashForLogging returns a short SHA-256 prefix of the value, enough for
// correlation without exposing the credential.
func HashForLogging(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}
