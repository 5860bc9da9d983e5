package audit

import (
	"context"
	"sync"
	"time"
)

// defaultMemoryCapacity bounds the in-memory backend.
const defaultMemoryCapacity = 10000

// MemoryStorage keeps events in a bounded in-process ring. The oldest
// event is discarded at capacity. Suitable for development and for
// deployments that only read audit events through the admin API.
type MemoryStorage struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewMemoryStorage creates an in-memory backend. capacity <= 0 selects
// the default.
func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStorage{capacity: capacity}
}

// Append implements Storage.
func (s *MemoryStorage) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if len(s.events) > s.capacity {
		s.events = s.events[len(s.events)-s.capacity:]
	}
	return nil
}

// List implements Storage.
func (s *MemoryStorage) List(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]Event, 0, limit)
	for i := len(s.events) - 1; i >= len(s.events)-limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// Prune implements Storage.
func (s *MemoryStorage) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var pruned int64
	for _, e := range s.events {
		if e.Time.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return pruned, nil
}

// Close implements Storage.
func (s *MemoryStorage) Close() error { return nil }
