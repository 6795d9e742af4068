// Package auth implements the token lifecycle for the files proxy: a
// concurrency-safe cache for the service's client-credentials access token,
// the issuer that performs the OAuth2 client-credentials exchange against the
// upstream commerce platform, and the per-request resolution of which token
// an upstream call should present.
//
// Two credential modes coexist:
//
//   - Forwarded: a caller supplies its own bearer token on the inbound
//     request. The token is carried in the request context and presented
//     upstream unchanged. It is never cached.
//   - Service: no caller token is present, so the proxy authenticates as
//     itself using the configured client id and secret. The resulting token
//     is cached with a 10% safety margin on its lifetime and reused until it
//     approaches expiry.
//
// Forwarded tokens travel via context values (ContextWithForwardedToken),
// never via shared mutable state, so concurrent requests with different
// caller identities cannot observe each other's credentials.
package auth
