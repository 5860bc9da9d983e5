package cache

import (
	"context"
	"testing"
	"time"

	"sentinel-hq/aegis/pkg/config"
)

// unreachableRedis builds a RedisStore pointing at a port nothing listens
// on, with timeouts short enough to keep tests fast.
func unreachableRedis() *RedisStore {
	return NewRedisStore(config.RedisConfig{
		Address:     "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		ReadTimeout: 50 * time.Millisecond,
	})
}

func TestAutoFallsBackWhenRedisUnreachable(t *testing.T) {
	s := NewAutoStore(unreachableRedis(), NewLocalStore(100))
	defer s.Close()
	ctx := context.Background()

	if err := s.Start(ctx, "@every 1h"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// The store settled on the local backend; calls succeed without any
	// error surfacing to the caller.
	if err := s.Set(ctx, "k", testVerdict(true), time.Minute); err != nil {
		t.Fatalf("set after fallback failed: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("get after fallback: ok=%v err=%v", ok, err)
	}
	if !v.Allowed {
		t.Error("wrong verdict returned")
	}

	stats := s.Stats(ctx)
	if stats.ActiveBackend != "local" {
		t.Errorf("active backend = %q, want local", stats.ActiveBackend)
	}
	if stats.Hits != 1 {
		t.Errorf("hits = %d, want 1", stats.Hits)
	}
}

func TestAutoCallTimeFailover(t *testing.T) {
	s := NewAutoStore(unreachableRedis(), NewLocalStore(100))
	defer s.Close()
	ctx := context.Background()

	// Force the distributed state as if the startup probe had succeeded,
	// then let the first call discover the outage.
	s.state.Store(int32(stateDistributed))

	if err := s.Set(ctx, "k", testVerdict(true), time.Minute); err != nil {
		t.Fatalf("set must be absorbed by failover: %v", err)
	}
	if backendState(s.state.Load()) != stateLocal {
		t.Fatal("store did not fail over to local")
	}

	// The verdict written during failover is readable locally.
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Error("verdict lost during failover")
	}
}

func TestAutoServesLocallyWhileProbing(t *testing.T) {
	// Before Start finishes, the local backend answers.
	s := NewAutoStore(unreachableRedis(), NewLocalStore(100))
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "k", testVerdict(false), time.Minute); err != nil {
		t.Fatalf("set while probing failed: %v", err)
	}
	v, ok, _ := s.Get(ctx, "k")
	if !ok || v.Allowed {
		t.Errorf("get while probing: ok=%v", ok)
	}
}

func TestAutoClearClearsLocal(t *testing.T) {
	s := NewAutoStore(unreachableRedis(), NewLocalStore(100))
	defer s.Close()
	ctx := context.Background()

	s.state.Store(int32(stateLocal))
	s.Set(ctx, "k", testVerdict(true), time.Minute)

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("entry survived clear")
	}
}
