package upstream

import "fmt"

// Error is a backend request failure: the backend was unreachable or
// answered with a non-2xx status.
type Error struct {
	// Endpoint is the backend path the request targeted.
	Endpoint string

	// StatusCode is the HTTP status the backend answered with, or 0 when
	// it could not be reached at all.
	StatusCode int

	// Message is the backend's error body, or a short description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Endpoint, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// TimeoutError is a backend request abandoned because the request context
// expired or was cancelled.
type TimeoutError struct {
	Endpoint string
	Cause    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream %s: deadline exceeded", e.Endpoint)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// StreamError is a failure after streaming started. The frames delivered
// before it remain valid; the stream is truncated, not invalid.
type StreamError struct {
	Endpoint string
	Cause    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("upstream %s: stream interrupted: %v", e.Endpoint, e.Cause)
}

func (e *StreamError) Unwrap() error { return e.Cause }
