package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP address from the request.
//
// Only enable trustProxy when behind a trusted reverse proxy; otherwise the
// X-Forwarded-For and X-Real-IP headers are attacker-controlled.
// trustedProxyCount specifies how many proxies to trust from the right of
// the X-Forwarded-For chain.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := extractIPFromXFF(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}
	return extractIPFromRemoteAddr(r.RemoteAddr)
}

// extractIPFromXFF parses X-Forwarded-For. The chain reads
// "client, proxy1, proxy2"; the rightmost entries are the proxies we
// control, so the client is trustedProxyCount+1 positions from the end.
func extractIPFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}
	if trustedProxyCount < 1 {
		trustedProxyCount = 1
	}

	parts := strings.Split(xff, ",")
	idx := len(parts) - trustedProxyCount
	if idx < 0 {
		idx = 0
	}

	ip := strings.TrimSpace(parts[idx])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}

// extractIPFromRemoteAddr strips the port from the connection address.
func extractIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
