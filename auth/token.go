package auth

import "time"

// expirySafetyFactor is the fraction of the provider-reported lifetime a
// token is trusted for. Refreshing 10% early avoids presenting a token that
// expires while an upstream call is in flight.
const expirySafetyFactor = 0.9

// DefaultExpiresIn is the assumed token lifetime in seconds when the
// provider omits expires_in from the token response.
const DefaultExpiresIn = 3600

// AccessToken is a service access token obtained via the client-credentials
// grant. Tokens are immutable; the issuer replaces the cached token wholesale
// on each successful exchange.
type AccessToken struct {
	// Value is the opaque credential string presented as a bearer token.
	Value string

	// IssuedAt is when the exchange completed.
	IssuedAt time.Time

	// ExpiresAt is IssuedAt plus the margin-adjusted lifetime.
	ExpiresAt time.Time
}

// NewAccessToken builds a token from a provider response, applying the
// safety margin to expiresIn (seconds).
func NewAccessToken(value string, issuedAt time.Time, expiresIn int64) AccessToken {
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}
	lifetime := time.Duration(float64(expiresIn)*expirySafetyFactor) * time.Second
	return AccessToken{
		Value:     value,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(lifetime),
	}
}

// Valid reports whether the token is usable at the given instant.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TimeToExpiry returns the remaining usable lifetime at the given instant.
// Returns zero for expired or empty tokens.
func (t AccessToken) TimeToExpiry(now time.Time) time.Duration {
	if !t.Valid(now) {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}
