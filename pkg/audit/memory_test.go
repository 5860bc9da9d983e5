package audit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryAppendAndList(t *testing.T) {
	s := NewMemoryStorage(10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Append(ctx, Event{
			ID:    fmt.Sprintf("e%d", i),
			Time:  time.Now(),
			Kind:  KindBlock,
			Model: "llama3",
		})
	}

	events, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	// Newest first.
	if events[0].ID != "e2" || events[2].ID != "e0" {
		t.Errorf("wrong order: %s, %s", events[0].ID, events[2].ID)
	}

	limited, _ := s.List(ctx, 2)
	if len(limited) != 2 || limited[0].ID != "e2" {
		t.Errorf("limited list wrong: %+v", limited)
	}
}

func TestMemoryCapacityDropsOldest(t *testing.T) {
	s := NewMemoryStorage(2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		s.Append(ctx, Event{ID: fmt.Sprintf("e%d", i)})
	}

	events, _ := s.List(ctx, 0)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != "e3" || events[1].ID != "e2" {
		t.Errorf("wrong survivors: %s, %s", events[0].ID, events[1].ID)
	}
}

func TestMemoryPrune(t *testing.T) {
	s := NewMemoryStorage(10)
	ctx := context.Background()
	now := time.Now()

	s.Append(ctx, Event{ID: "old", Time: now.Add(-48 * time.Hour)})
	s.Append(ctx, Event{ID: "recent", Time: now})

	pruned, err := s.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	events, _ := s.List(ctx, 0)
	if len(events) != 1 || events[0].ID != "recent" {
		t.Errorf("wrong survivors: %+v", events)
	}
}
