// Package cache stores scan verdicts so repeated or templated inputs skip
// the analyzer pipeline entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"sentinel-hq/aegis/pkg/scan"
)

// Store is the verdict cache contract. Two backends implement it: a local
// in-process map with LRU eviction and per-entry expiry, and a Redis-backed
// distributed store. The auto store composes both behind the same interface
// so call sites never branch on backend.
type Store interface {
	// Get returns the cached verdict for key, or ok=false on a miss.
	// A backend error counts as a miss; err reports it for backends that
	// can fail (the local backend always returns nil).
	Get(ctx context.Context, key string) (verdict *scan.Verdict, ok bool, err error)

	// Set stores a verdict under key with the given time-to-live.
	Set(ctx context.Context, key string, verdict *scan.Verdict, ttl time.Duration) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Stats returns hit/miss counters, current size, and the active
	// backend name.
	Stats(ctx context.Context) Stats

	// Close releases backend resources. Closing twice is a no-op.
	Close() error
}

// Stats describes cache effectiveness and the backend serving it.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Size          int64  `json:"size"`
	ActiveBackend string `json:"active_backend"`
}

// Key derives the cache key for a piece of text under the active analyzer
// configuration. The text is normalized (whitespace collapsed, trimmed) so
// insignificant formatting differences still hit; the configuration version
// is mixed in so changing which analyzers run invalidates stale verdicts
// without an explicit flush.
func Key(text, direction, configVersion string) string {
	normalized := strings.Join(strings.Fields(text), " ")

	h := sha256.New()
	h.Write([]byte(direction))
	h.Write([]byte{0})
	h.Write([]byte(configVersion))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}
