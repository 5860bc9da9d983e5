// Package audit records block and rejection events asynchronously, so a
// misbehaving storage backend never slows request handling. Two backends
// exist: a bounded in-memory ring and a SQLite database with scheduled
// retention pruning.
package audit

import (
	"context"
	"time"
)

// Event kinds.
const (
	// KindBlock is a content block by the scan pipeline.
	KindBlock = "block"

	// KindRejection is an admission rejection (wait-line full).
	KindRejection = "rejection"
)

// Event is one recorded block or rejection.
type Event struct {
	// ID is the record identifier, assigned by the recorder.
	ID string `json:"id"`

	// Time is when the event happened.
	Time time.Time `json:"time"`

	// RequestID correlates the event with request logs.
	RequestID string `json:"request_id"`

	// Kind is KindBlock or KindRejection.
	Kind string `json:"kind"`

	// Dialect and Model identify the request's target.
	Dialect string `json:"dialect"`
	Model   string `json:"model"`

	// Direction and Analyzer describe a block; empty for rejections.
	Direction string `json:"direction,omitempty"`
	Analyzer  string `json:"analyzer,omitempty"`

	// RiskScore is the verdict's highest risk score; zero for rejections.
	RiskScore float64 `json:"risk_score,omitempty"`

	// Message is the short human-readable event description.
	Message string `json:"message,omitempty"`
}

// Storage persists audit events. Implementations must be safe for
// concurrent use; only the recorder's worker calls Append, but List and
// Prune run from other goroutines.
type Storage interface {
	// Append persists one event.
	Append(ctx context.Context, event Event) error

	// List returns the most recent events, newest first, up to limit.
	List(ctx context.Context, limit int) ([]Event, error)

	// Prune deletes events older than cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the backend.
	Close() error
}
