// Package upstream wraps outbound calls to the commerce platform's Files
// API. A single Client is shared by all inbound requests; the bearer token
// to present is passed per call, never stored on the client, so concurrent
// requests with different caller identities are isolated by construction.
//
// Success and error responses are shaped uniformly: 2xx bodies surface as
// raw JSON (or an explicit no-content marker for 204), anything else becomes
// an *Error carrying the upstream status code and error envelope.
package upstream
