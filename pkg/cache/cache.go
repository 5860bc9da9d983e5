package cache

import (
	"context"
	"fmt"

	"sentinel-hq/aegis/pkg/config"
)

// New builds the store selected by cfg.Backend and brings it to a usable
// state. For the redis backend an unreachable server is a hard error; the
// auto backend absorbs the same condition and starts on its local side.
func New(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case config.CacheBackendLocal:
		return NewLocalStore(cfg.MaxEntries), nil

	case config.CacheBackendRedis:
		s := NewRedisStore(cfg.Redis)
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("redis backend: %w", err)
		}
		return s, nil

	case config.CacheBackendAuto:
		s := NewAutoStore(NewRedisStore(cfg.Redis), NewLocalStore(cfg.MaxEntries))
		if err := s.Start(ctx, cfg.ReprobeSchedule); err != nil {
			s.Close()
			return nil, fmt.Errorf("auto backend: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
