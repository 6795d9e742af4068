package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error represents a failed upstream call: either a non-2xx response or a
// transport-level failure (StatusCode 0).
type Error struct {
	// StatusCode is the upstream HTTP status, or 0 for transport failures.
	StatusCode int

	// Body is the upstream error envelope. For empty upstream bodies a
	// minimal envelope is synthesized so callers always have one.
	Body json.RawMessage

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Unwrap returns the underlying transport error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether the failure happened below the HTTP layer
// (timeout, connection refused). Such errors are retryable by the caller.
func (e *Error) IsNetwork() bool {
	return e.StatusCode == 0
}

// errorEnvelope is the JSON:API-style error body the Files API uses.
type errorEnvelope struct {
	Errors []errorObject `json:"errors"`
}

type errorObject struct {
	Status int    `json:"status,omitempty"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// synthesizeErrorBody builds a minimal error envelope for responses whose
// body was empty or unreadable.
func synthesizeErrorBody(statusCode int, title string) json.RawMessage {
	if title == "" {
		title = http.StatusText(statusCode)
	}
	body, err := json.Marshal(errorEnvelope{
		Errors: []errorObject{{Status: statusCode, Title: title}},
	})
	if err != nil {
		return json.RawMessage(`{"errors":[{"title":"unknown error"}]}`)
	}
	return body
}
