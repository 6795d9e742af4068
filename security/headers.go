package security

import "net/http"

// SetSecurityHeaders sets standard security headers on API responses.
func SetSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")
	// Responses may carry caller-scoped data; keep them out of shared caches.
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
}
