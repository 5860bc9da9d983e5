package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-retry"

	"sentinel-hq/aegis/pkg/scan"
)

// backendState is the auto store's failover state.
type backendState int32

const (
	// stateProbing means the distributed backend has not been reached yet.
	stateProbing backendState = iota
	// stateDistributed means Redis is serving the cache.
	stateDistributed
	// stateLocal means the store has fallen back to the local backend.
	stateLocal
)

// AutoStore composes the distributed and local backends behind a single
// Store. It prefers the distributed backend; on any failure to reach it, at
// startup or at call time, it durably switches to the local backend and
// re-probes Redis on a cron cadence, switching back once a probe succeeds.
//
// Callers only ever see get/miss: backend errors are absorbed here, logged,
// and converted into a failover.
type AutoStore struct {
	distributed *RedisStore
	local       *LocalStore

	state atomic.Int32

	hits   atomic.Uint64
	misses atomic.Uint64

	reprobe   *cron.Cron
	closeOnce sync.Once
}

// NewAutoStore creates the failover store. Start must be called before use.
func NewAutoStore(distributed *RedisStore, local *LocalStore) *AutoStore {
	s := &AutoStore{
		distributed: distributed,
		local:       local,
	}
	s.state.Store(int32(stateProbing))
	return s
}

// Start probes the distributed backend with Fibonacci backoff and settles
// into the distributed or local state. It then schedules the re-probe job;
// reprobeSchedule is a cron expression or descriptor (e.g. "@every 30s").
func (s *AutoStore) Start(ctx context.Context, reprobeSchedule string) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return retry.RetryableError(s.distributed.Ping(ctx))
	})
	if err != nil {
		slog.Warn("distributed cache unreachable at startup, using local backend", "error", err)
		s.state.Store(int32(stateLocal))
	} else {
		slog.Info("distributed cache reachable, using redis backend")
		s.state.Store(int32(stateDistributed))
	}

	s.reprobe = cron.New()
	if _, err := s.reprobe.AddFunc(reprobeSchedule, s.reprobeDistributed); err != nil {
		return err
	}
	s.reprobe.Start()
	return nil
}

// reprobeDistributed pings Redis while in the local state and promotes the
// store back to the distributed backend on success.
func (s *AutoStore) reprobeDistributed() {
	if backendState(s.state.Load()) != stateLocal {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.distributed.Ping(ctx); err != nil {
		slog.Debug("distributed cache still unreachable", "error", err)
		return
	}

	slog.Info("distributed cache reachable again, switching back from local backend")
	s.state.Store(int32(stateDistributed))
}

// failover durably switches to the local backend after a call-time failure.
func (s *AutoStore) failover(err error) {
	if s.state.CompareAndSwap(int32(stateDistributed), int32(stateLocal)) {
		slog.Warn("distributed cache failed, falling back to local backend", "error", err)
	}
}

// active returns the backend currently serving calls. While probing (Start
// not yet finished) the local backend serves, so early requests never block
// on Redis.
func (s *AutoStore) active() Store {
	if backendState(s.state.Load()) == stateDistributed {
		return s.distributed
	}
	return s.local
}

// Get implements Store. A distributed-backend failure is absorbed: the call
// is answered by the local backend and the store fails over.
func (s *AutoStore) Get(ctx context.Context, key string) (*scan.Verdict, bool, error) {
	verdict, ok, err := s.active().Get(ctx, key)
	if err != nil {
		s.failover(err)
		verdict, ok, _ = s.local.Get(ctx, key)
	}

	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return verdict, ok, nil
}

// Set implements Store. Failures follow the same failover path as Get; the
// verdict is re-written to the local backend so it is not lost.
func (s *AutoStore) Set(ctx context.Context, key string, verdict *scan.Verdict, ttl time.Duration) error {
	if err := s.active().Set(ctx, key, verdict, ttl); err != nil {
		s.failover(err)
		return s.local.Set(ctx, key, verdict, ttl)
	}
	return nil
}

// Clear implements Store. Both backends are cleared so a later failback
// cannot resurrect stale verdicts.
func (s *AutoStore) Clear(ctx context.Context) error {
	if err := s.local.Clear(ctx); err != nil {
		return err
	}
	if backendState(s.state.Load()) == stateDistributed {
		if err := s.distributed.Clear(ctx); err != nil {
			s.failover(err)
		}
	}
	return nil
}

// Stats implements Store. Hit/miss counters are the auto store's own (they
// survive failover); size and backend name come from the active backend.
func (s *AutoStore) Stats(ctx context.Context) Stats {
	inner := s.active().Stats(ctx)
	return Stats{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Size:          inner.Size,
		ActiveBackend: inner.ActiveBackend,
	}
}

// Close stops the re-probe job and closes both backends.
func (s *AutoStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.reprobe != nil {
			s.reprobe.Stop()
		}
		err = s.distributed.Close()
		if cerr := s.local.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
