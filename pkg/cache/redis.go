package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"sentinel-hq/aegis/pkg/config"
	"sentinel-hq/aegis/pkg/scan"
)

// keyPrefix namespaces verdict keys so Aegis can share a Redis database
// with other tenants.
const keyPrefix = "aegis:verdict:"

// RedisStore is the distributed cache backend. Verdicts are stored as JSON
// with Redis-side expiry, so multiple proxy instances share one verdict
// cache. The client maintains a bounded connection pool sized independently
// of admission limits.
type RedisStore struct {
	client *redis.Client

	hits   atomic.Uint64
	misses atomic.Uint64

	closeOnce sync.Once
}

// NewRedisStore creates a Redis-backed store from connection parameters.
// It does not probe connectivity; use Ping for that.
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
	})
	return &RedisStore{client: client}
}

// Ping verifies the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get implements Store. redis.Nil is a plain miss; any other failure is
// both a miss and an error, which the auto store uses to trigger failover.
func (s *RedisStore) Get(ctx context.Context, key string) (*scan.Verdict, bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return nil, false, nil
		}
		s.misses.Add(1)
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var verdict scan.Verdict
	if err := json.Unmarshal([]byte(data), &verdict); err != nil {
		// A corrupt entry is unreadable forever; drop it.
		s.client.Del(ctx, keyPrefix+key)
		s.misses.Add(1)
		return nil, false, fmt.Errorf("redis entry decode: %w", err)
	}

	s.hits.Add(1)
	return &verdict, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, verdict *scan.Verdict, ttl time.Duration) error {
	data, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("verdict encode: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Clear implements Store. Only keys under the Aegis prefix are removed.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis clear: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis clear scan: %w", err)
	}
	return nil
}

// Stats implements Store. Size is the count of Aegis-prefixed keys; a scan
// failure reports size -1 rather than an error.
func (s *RedisStore) Stats(ctx context.Context) Stats {
	var size int64
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		size++
	}
	if iter.Err() != nil {
		size = -1
	}

	return Stats{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Size:          size,
		ActiveBackend: "redis",
	}
}

// Close implements Store. Closing twice is a no-op.
func (s *RedisStore) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.client.Close() })
	return err
}
