// Package admission bounds concurrent backend work per model with a
// parallel-slot limit and a bounded FIFO wait-line.
package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"sentinel-hq/aegis/pkg/telemetry/metrics"
)

// Ticket is permission to run one request against a model. It must be
// released exactly once; releasing again is a no-op.
type Ticket struct {
	model      string
	entry      *modelEntry
	sem        *semaphore.Weighted
	waited     time.Duration
	acquiredAt time.Time
	released   atomic.Bool
}

// Model returns the model the ticket admits work for.
func (t *Ticket) Model() string { return t.model }

// Waited returns how long the request waited for its slot.
func (t *Ticket) Waited() time.Duration { return t.waited }

// modelEntry holds one model's semaphore and counters. Each entry is its
// own synchronization unit so many distinct models never contend on a
// single global lock.
//
// The semaphore pointer is replaced on limit updates; tickets keep a
// reference to the semaphore they acquired from so releases always pair
// with the right instance.
type modelEntry struct {
	mu sync.Mutex

	sem           *semaphore.Weighted
	parallelLimit int64
	queueLimit    int64

	active int64
	queued int64

	totalProcessed uint64
	totalRejected  uint64
	cumWait        time.Duration
	cumProcessing  time.Duration

	createdAt time.Time
}

// Controller admits requests per backend model. Entries are created lazily
// on first sight of a model name and live for the process lifetime.
//
// # Ordering
//
// Waiters for the same model are served first-in-first-out (the semaphore
// queues waiters in arrival order). There is no ordering across distinct
// models; their semaphores are fully independent.
type Controller struct {
	mu     sync.RWMutex
	models map[string]*modelEntry

	defaultParallel int64
	defaultQueue    int64

	metrics *metrics.Metrics
}

// NewController creates a controller with the given default limits, applied
// to models seen for the first time.
func NewController(defaultParallel, defaultQueue int64) *Controller {
	if defaultParallel < 1 {
		defaultParallel = 1
	}
	if defaultQueue < 0 {
		defaultQueue = 0
	}
	return &Controller{
		models:          make(map[string]*modelEntry),
		defaultParallel: defaultParallel,
		defaultQueue:    defaultQueue,
	}
}

// SetMetrics attaches Prometheus collectors. A nil metrics set disables
// instrumentation.
func (c *Controller) SetMetrics(m *metrics.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// entry returns the model's entry, creating it on first sight.
func (c *Controller) entry(model string) *modelEntry {
	c.mu.RLock()
	e, ok := c.models[model]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.models[model]; ok {
		return e
	}
	e = &modelEntry{
		sem:           semaphore.NewWeighted(c.defaultParallel),
		parallelLimit: c.defaultParallel,
		queueLimit:    c.defaultQueue,
		createdAt:     time.Now(),
	}
	c.models[model] = e
	return e
}

// Acquire obtains an admission ticket for the model, waiting FIFO for a
// free slot. If the wait-line is already at its limit it returns
// ErrQueueFull immediately without queuing. Context cancellation while
// waiting abandons the wait and returns the context's error.
func (c *Controller) Acquire(ctx context.Context, model string) (*Ticket, error) {
	e := c.entry(model)
	m := c.getMetrics()

	e.mu.Lock()
	sem := e.sem

	// Fast path: a free slot means no queueing at all.
	if sem.TryAcquire(1) {
		e.active++
		e.mu.Unlock()
		if m != nil {
			m.AdmissionActive.WithLabelValues(model).Inc()
		}
		return &Ticket{model: model, entry: e, sem: sem, acquiredAt: time.Now()}, nil
	}

	// No slot free: join the wait-line or be rejected.
	if e.queued >= e.queueLimit {
		e.totalRejected++
		e.mu.Unlock()
		if m != nil {
			m.AdmissionRejected.WithLabelValues(model).Inc()
		}
		return nil, ErrQueueFull
	}
	e.queued++
	e.mu.Unlock()

	if m != nil {
		m.AdmissionQueued.WithLabelValues(model).Inc()
	}

	start := time.Now()
	err := sem.Acquire(ctx, 1)
	waited := time.Since(start)

	e.mu.Lock()
	e.queued--
	if err != nil {
		// Cancelled while waiting; the wait still counts toward telemetry.
		e.cumWait += waited
		e.mu.Unlock()
		if m != nil {
			m.AdmissionQueued.WithLabelValues(model).Dec()
		}
		return nil, err
	}
	e.active++
	e.cumWait += waited
	e.mu.Unlock()

	if m != nil {
		m.AdmissionQueued.WithLabelValues(model).Dec()
		m.AdmissionActive.WithLabelValues(model).Inc()
	}

	return &Ticket{model: model, entry: e, sem: sem, waited: waited, acquiredAt: time.Now()}, nil
}

// Release returns the ticket's slot and folds its timings into the model's
// totals. Releasing an already-released ticket is a no-op.
func (c *Controller) Release(t *Ticket) {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return
	}

	t.sem.Release(1)

	e := t.entry
	e.mu.Lock()
	e.active--
	e.totalProcessed++
	e.cumProcessing += time.Since(t.acquiredAt)
	e.mu.Unlock()

	if m := c.getMetrics(); m != nil {
		m.AdmissionActive.WithLabelValues(t.model).Dec()
	}
}

// Stats returns the snapshot for one model, or ok=false if the model has
// not been seen.
func (c *Controller) Stats(model string) (ModelQueueState, bool) {
	c.mu.RLock()
	e, ok := c.models[model]
	c.mu.RUnlock()
	if !ok {
		return ModelQueueState{}, false
	}
	return e.snapshot(model), true
}

// AllStats returns snapshots for every model seen so far.
func (c *Controller) AllStats() map[string]ModelQueueState {
	c.mu.RLock()
	names := make([]string, 0, len(c.models))
	entries := make([]*modelEntry, 0, len(c.models))
	for name, e := range c.models {
		names = append(names, name)
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	out := make(map[string]ModelQueueState, len(names))
	for i, e := range entries {
		out[names[i]] = e.snapshot(names[i])
	}
	return out
}

// UpdateLimits changes a model's limits at runtime, creating the entry if
// the model has not been seen. The new parallel limit applies to subsequent
// acquisitions; requests already holding a slot drain against the previous
// semaphore, so the active count converges to the new limit as they finish.
func (c *Controller) UpdateLimits(model string, parallelLimit, queueLimit int64) {
	if parallelLimit < 1 {
		parallelLimit = 1
	}
	if queueLimit < 0 {
		queueLimit = 0
	}

	e := c.entry(model)
	e.mu.Lock()
	defer e.mu.Unlock()
	if parallelLimit != e.parallelLimit {
		e.sem = semaphore.NewWeighted(parallelLimit)
		e.parallelLimit = parallelLimit
	}
	e.queueLimit = queueLimit
}

// UpdateDefaultLimits changes the limits applied to models seen for the
// first time. Existing entries are not modified.
func (c *Controller) UpdateDefaultLimits(parallelLimit, queueLimit int64) {
	if parallelLimit < 1 {
		parallelLimit = 1
	}
	if queueLimit < 0 {
		queueLimit = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultParallel = parallelLimit
	c.defaultQueue = queueLimit
}

// Reset zeroes the statistics counters for one model, or for all models
// when model is empty. Live state (active, queued, limits) is untouched.
func (c *Controller) Reset(model string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, e := range c.models {
		if model != "" && name != model {
			continue
		}
		e.mu.Lock()
		e.totalProcessed = 0
		e.totalRejected = 0
		e.cumWait = 0
		e.cumProcessing = 0
		e.mu.Unlock()
	}
}

func (c *Controller) getMetrics() *metrics.Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metrics
}

// snapshot copies the entry's state under its lock.
func (e *modelEntry) snapshot(model string) ModelQueueState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ModelQueueState{
		Model:                model,
		ParallelLimit:        e.parallelLimit,
		QueueLimit:           e.queueLimit,
		ActiveCount:          e.active,
		QueuedCount:          e.queued,
		TotalProcessed:       e.totalProcessed,
		TotalRejected:        e.totalRejected,
		CumulativeWait:       e.cumWait,
		CumulativeProcessing: e.cumProcessing,
		CreatedAt:            e.createdAt,
	}
}
