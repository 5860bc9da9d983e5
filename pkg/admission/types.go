package admission

import (
	"errors"
	"time"
)

// ErrQueueFull is returned by Acquire when a model's wait-line is at its
// limit. The request was rejected outright and never queued; clients may
// retry with backoff.
var ErrQueueFull = errors.New("admission wait-line full")

// ModelQueueState is a point-in-time snapshot of one model's admission
// queue. All counters are mutated only through the controller's
// acquire/release path; the struct itself is a copy and safe to retain.
type ModelQueueState struct {
	// Model is the backend model name.
	Model string `json:"model"`

	// ParallelLimit is the number of concurrent slots.
	ParallelLimit int64 `json:"parallel_limit"`

	// QueueLimit is the wait-line bound.
	QueueLimit int64 `json:"queue_limit"`

	// ActiveCount is the number of requests currently holding a slot.
	// Always <= ParallelLimit.
	ActiveCount int64 `json:"active_count"`

	// QueuedCount is the number of requests currently waiting.
	// Always <= QueueLimit.
	QueuedCount int64 `json:"queued_count"`

	// TotalProcessed counts completed acquire/release cycles.
	TotalProcessed uint64 `json:"total_processed"`

	// TotalRejected counts wait-line rejections.
	TotalRejected uint64 `json:"total_rejected"`

	// CumulativeWait is total time spent waiting for a slot.
	CumulativeWait time.Duration `json:"cumulative_wait_ns"`

	// CumulativeProcessing is total time spent holding a slot.
	CumulativeProcessing time.Duration `json:"cumulative_processing_ns"`

	// CreatedAt is when this model was first seen.
	CreatedAt time.Time `json:"created_at"`
}
