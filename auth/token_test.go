package auth

import (
	"testing"
	"time"
)

func TestNewAccessToken_SafetyMargin(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		expiresIn    int64
		wantLifetime time.Duration
	}{
		{"standard hour", 3600, 3240 * time.Second},
		{"hundred seconds", 100, 90 * time.Second},
		{"zero uses default", 0, time.Duration(float64(DefaultExpiresIn)*0.9) * time.Second},
		{"negative uses default", -5, time.Duration(float64(DefaultExpiresIn)*0.9) * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := NewAccessToken("abc", issued, tt.expiresIn)
			if got := tok.ExpiresAt.Sub(tok.IssuedAt); got != tt.wantLifetime {
				t.Errorf("lifetime = %v, want %v", got, tt.wantLifetime)
			}
		})
	}
}

func TestAccessToken_Valid(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tok := NewAccessToken("abc", issued, 100)

	if !tok.Valid(issued) {
		t.Error("token should be valid at issue time")
	}
	if !tok.Valid(issued.Add(89 * time.Second)) {
		t.Error("token should be valid inside the margin-adjusted lifetime")
	}
	if tok.Valid(issued.Add(90 * time.Second)) {
		t.Error("token should be invalid at the margin-adjusted expiry")
	}
	if tok.Valid(issued.Add(95 * time.Second)) {
		t.Error("token should be invalid past the margin-adjusted expiry even though the provider lifetime has not elapsed")
	}
}

func TestAccessToken_Valid_Empty(t *testing.T) {
	var tok AccessToken
	if tok.Valid(time.Now()) {
		t.Error("zero token should never be valid")
	}
}

func TestAccessToken_TimeToExpiry(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tok := NewAccessToken("abc", issued, 100)

	if got := tok.TimeToExpiry(issued); got != 90*time.Second {
		t.Errorf("TimeToExpiry at issue = %v, want 90s", got)
	}
	if got := tok.TimeToExpiry(issued.Add(30 * time.Second)); got != 60*time.Second {
		t.Errorf("TimeToExpiry after 30s = %v, want 60s", got)
	}
	if got := tok.TimeToExpiry(issued.Add(2 * time.Minute)); got != 0 {
		t.Errorf("TimeToExpiry after expiry = %v, want 0", got)
	}
}
