package backend

import (
	"errors"
	"fmt"

	"sgrchat/parser"
)

// ErrIncompleteStream is reported when the response body ends before the
// [DONE] sentinel.
var ErrIncompleteStream = errors.New("stream ended without [DONE]")

// StatusError is returned for non-2xx backend responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent backend: status %d", e.StatusCode)
	}
	return fmt.Sprintf("agent backend: status %d: %s", e.StatusCode, e.Body)
}

// StreamError is returned when a stream fails after it started. Partial holds
// the best-effort result finalized from what was received.
type StreamError struct {
	Partial parser.ParseResult
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if n := len(e.Partial.MainText) + len(e.Partial.SpoilerText); n > 0 {
		return fmt.Sprintf("stream error (partial content received: %d bytes): %v", n, e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}
