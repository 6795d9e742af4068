// Package security provides the proxy's cross-cutting security features:
// per-IP rate limiting, request ID generation and propagation, client IP
// extraction behind trusted proxies, response security headers, and audit
// logging with token material hashed before it reaches any log line.
package security
