package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"sentinel-hq/aegis/pkg/scan"
)

// localEntry is one cached verdict with its bookkeeping.
type localEntry struct {
	verdict        *scan.Verdict
	expiresAt      time.Time
	lastAccessedAt time.Time
}

// LocalStore is the in-process cache backend: a bounded map with per-entry
// expiry and least-recently-used eviction at capacity. It never fails, which
// makes it the fallback target when the distributed backend is unreachable.
//
// # Thread Safety
//
// A single mutex guards the map, guaranteeing at most one mutator at a
// time. A background goroutine sweeps expired entries on a fixed interval
// until Close is called.
type LocalStore struct {
	mu         sync.Mutex
	entries    map[string]*localEntry
	maxEntries int

	hits   atomic.Uint64
	misses atomic.Uint64

	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewLocalStore creates a local store bounded to maxEntries (0 = unlimited).
func NewLocalStore(maxEntries int) *LocalStore {
	s := &LocalStore{
		entries:    make(map[string]*localEntry),
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
	}
	go s.sweepExpired()
	return s
}

// Get implements Store. Expired entries are treated as misses and removed.
func (s *LocalStore) Get(ctx context.Context, key string) (*scan.Verdict, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		s.misses.Add(1)
		return nil, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		s.misses.Add(1)
		return nil, false, nil
	}

	entry.lastAccessedAt = time.Now()
	s.hits.Add(1)
	return entry.verdict, true, nil
}

// Set implements Store. At capacity the least recently accessed entry is
// evicted first, unless the key already exists.
func (s *LocalStore) Set(ctx context.Context, key string, verdict *scan.Verdict, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		if _, exists := s.entries[key]; !exists {
			s.evictLRU()
		}
	}

	now := time.Now()
	s.entries[key] = &localEntry{
		verdict:        verdict,
		expiresAt:      now.Add(ttl),
		lastAccessedAt: now,
	}
	return nil
}

// Clear implements Store.
func (s *LocalStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*localEntry)
	return nil
}

// Stats implements Store.
func (s *LocalStore) Stats(ctx context.Context) Stats {
	s.mu.Lock()
	size := int64(len(s.entries))
	s.mu.Unlock()

	return Stats{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Size:          size,
		ActiveBackend: "local",
	}
}

// Close stops the sweep goroutine. Closing twice is a no-op.
func (s *LocalStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCh) })
	return nil
}

// evictLRU removes the least recently accessed entry. Caller holds the lock.
func (s *LocalStore) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range s.entries {
		if oldestKey == "" || entry.lastAccessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessedAt
		}
	}

	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

// sweepExpired removes expired entries periodically so entries that are
// never read again do not pin memory until eviction.
func (s *LocalStore) sweepExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, entry := range s.entries {
				if now.After(entry.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}
