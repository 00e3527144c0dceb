package loom

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request failed validation.
	ErrValidation = errors.New("validation error")

	// ErrNoCredential indicates the credential source returned no bearer
	// token. Surfaced before any network I/O.
	ErrNoCredential = errors.New("no credential available")

	// ErrMissingBody indicates the server response carried no readable body.
	ErrMissingBody = errors.New("response has no readable body")

	// ErrTruncatedStream indicates the transport closed before a
	// completion frame arrived.
	ErrTruncatedStream = errors.New("stream ended before completion frame")
)

// TransportError indicates a non-success HTTP response. The session is not
// retried automatically; retry policy belongs to the caller.
type TransportError struct {
	StatusCode int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: HTTP %d", e.StatusCode)
}

// ServerError carries an error_message declared by the server inside the
// stream itself, as opposed to a transport-level failure.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}
