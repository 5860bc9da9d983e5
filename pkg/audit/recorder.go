package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Recorder accepts events from request handling and writes them to
// storage from a background worker. Record never blocks: when the buffer
// is full the event is dropped and counted.
//
// A nil *Recorder is a valid no-op, so callers need no enabled checks.
type Recorder struct {
	storage Storage
	events  chan Event
	dropped atomic.Uint64

	retention     time.Duration
	pruneSchedule string
	pruner        *cron.Cron

	wg       sync.WaitGroup
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewRecorder creates a recorder over the storage backend and starts its
// worker. retentionDays <= 0 disables pruning.
func NewRecorder(storage Storage, bufferSize, retentionDays int, pruneSchedule string) *Recorder {
	if bufferSize < 1 {
		bufferSize = 1
	}
	r := &Recorder{
		storage:       storage,
		events:        make(chan Event, bufferSize),
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		pruneSchedule: pruneSchedule,
		logger:        slog.Default().With("component", "audit.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	if r.retention > 0 {
		r.pruner = cron.New()
		if _, err := r.pruner.AddFunc(pruneSchedule, r.prune); err != nil {
			r.logger.Warn("invalid prune schedule, retention pruning disabled",
				"schedule", pruneSchedule, "error", err)
			r.pruner = nil
		} else {
			r.pruner.Start()
		}
	}

	return r
}

// Record enqueues one event, assigning its ID and timestamp. It returns
// immediately; a full buffer drops the event.
func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	event.ID = uuid.NewString()
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	select {
	case r.events <- event:
	default:
		// Dropping beats blocking a request on audit storage.
		if r.dropped.Add(1)%100 == 1 {
			r.logger.Warn("audit buffer full, dropping events",
				"dropped_total", r.dropped.Load())
		}
	}
}

// Dropped returns how many events were dropped due to a full buffer.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// List returns the most recent events, newest first.
func (r *Recorder) List(ctx context.Context, limit int) ([]Event, error) {
	if r == nil {
		return nil, nil
	}
	return r.storage.List(ctx, limit)
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for event := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.storage.Append(ctx, event); err != nil {
			r.logger.Error("audit append failed",
				"record_id", event.ID, "error", err)
		}
		cancel()
	}
}

// prune runs one retention pass.
func (r *Recorder) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-r.retention)
	n, err := r.storage.Prune(ctx, cutoff)
	if err != nil {
		r.logger.Error("audit prune failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("audit events pruned", "count", n, "cutoff", cutoff)
	}
}

// Stop drains buffered events, stops the pruner, and closes the storage.
func (r *Recorder) Stop() error {
	if r == nil {
		return nil
	}
	var err error
	r.stopOnce.Do(func() {
		if r.pruner != nil {
			r.pruner.Stop()
		}
		close(r.events)
		r.wg.Wait()
		err = r.storage.Close()
	})
	return err
}
