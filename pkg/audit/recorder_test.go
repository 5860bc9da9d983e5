package audit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// slowStorage blocks appends until released, to fill the recorder buffer.
type slowStorage struct {
	MemoryStorage
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newSlowStorage() *slowStorage {
	return &slowStorage{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (s *slowStorage) Append(ctx context.Context, event Event) error {
	s.started <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.MemoryStorage.Append(ctx, event)
}

func (s *slowStorage) Release() { s.once.Do(func() { close(s.release) }) }

func TestRecorderWritesThroughWorker(t *testing.T) {
	storage := NewMemoryStorage(10)
	r := NewRecorder(storage, 10, 0, "")

	r.Record(Event{RequestID: "req-1", Kind: KindBlock, Model: "llama3", Analyzer: "secrets"})
	r.Record(Event{RequestID: "req-2", Kind: KindRejection, Model: "llama3"})

	if err := r.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	events, _ := storage.List(context.Background(), 0)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, e := range events {
		if e.ID == "" {
			t.Error("recorder must assign an event ID")
		}
		if e.Time.IsZero() {
			t.Error("recorder must assign a timestamp")
		}
	}
}

func TestRecorderDropsWhenBufferFull(t *testing.T) {
	storage := newSlowStorage()
	r := NewRecorder(storage, 1, 0, "")

	// Park the worker on the first event, then fill the one-slot buffer.
	// Everything past that is dropped.
	r.Record(Event{Kind: KindBlock})
	<-storage.started
	for i := 0; i < 4; i++ {
		r.Record(Event{Kind: KindBlock})
	}
	if got := r.Dropped(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}

	storage.Release()
	if err := r.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestRecorderStopDrainsBuffer(t *testing.T) {
	storage := NewMemoryStorage(100)
	r := NewRecorder(storage, 50, 0, "")

	for i := 0; i < 20; i++ {
		r.Record(Event{Kind: KindBlock})
	}
	r.Stop()

	events, _ := storage.List(context.Background(), 0)
	if len(events) != 20 {
		t.Errorf("got %d events after stop, want 20 (stop must drain)", len(events))
	}

	// Stopping twice is safe.
	if err := r.Stop(); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestRecorderNilIsNoOp(t *testing.T) {
	var r *Recorder

	r.Record(Event{Kind: KindBlock})
	if r.Dropped() != 0 {
		t.Error("nil recorder dropped count")
	}
	events, err := r.List(context.Background(), 10)
	if err != nil || events != nil {
		t.Errorf("nil recorder list: %v, %v", events, err)
	}
	if err := r.Stop(); err != nil {
		t.Errorf("nil recorder stop: %v", err)
	}
}

func TestRecorderList(t *testing.T) {
	storage := NewMemoryStorage(10)
	r := NewRecorder(storage, 10, 0, "")
	defer r.Stop()

	r.Record(Event{Kind: KindBlock, Model: "llama3"})

	// The worker writes asynchronously.
	deadline := time.Now().Add(time.Second)
	for {
		events, err := r.List(context.Background(), 10)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(events) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event never reached storage")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecorderInvalidPruneSchedule(t *testing.T) {
	storage := NewMemoryStorage(10)
	// A bad schedule disables pruning but must not break recording.
	r := NewRecorder(storage, 10, 7, "not a schedule")

	r.Record(Event{Kind: KindBlock})
	if err := r.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	events, _ := storage.List(context.Background(), 0)
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
}
