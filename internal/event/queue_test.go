package event

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4)
	in := []Event{LedTick{}, SamplingStart{}, SamplingTrigger{}, SamplingStop{}}
	for _, ev := range in {
		if !q.TryPost(ev) {
			t.Fatalf("TryPost(%s) failed on non-full queue", ev.Tag())
		}
	}

	ctx := context.Background()
	for i, want := range in {
		got, err := q.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got.Tag() != want.Tag() {
			t.Fatalf("event %d: got %s, want %s", i, got.Tag(), want.Tag())
		}
	}
}

func TestQueueTryPostDropsWhenFull(t *testing.T) {
	q := NewQueue(2)
	q.TryPost(LedTick{})
	q.TryPost(LedTick{})
	if q.TryPost(SamplingTrigger{}) {
		t.Fatal("TryPost succeeded on full queue")
	}
	if q.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", q.Dropped())
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}
}

func TestQueuePostBlocksUntilSpace(t *testing.T) {
	q := NewQueue(1)
	q.TryPost(LedTick{})

	done := make(chan error, 1)
	go func() {
		done <- q.Post(context.Background(), CalibrateStart{})
	}()

	select {
	case <-done:
		t.Fatal("Post returned while queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	ctx := context.Background()
	if ev, _ := q.Next(ctx); ev.Tag() != TagLedTick {
		t.Fatalf("first event = %s, want LedTick", ev.Tag())
	}
	if err := <-done; err != nil {
		t.Fatalf("Post: %v", err)
	}
	if ev, _ := q.Next(ctx); ev.Tag() != TagCalibrateStart {
		t.Fatalf("second event = %s, want CalibrateStart", ev.Tag())
	}
}

func TestQueuePostHonoursContext(t *testing.T) {
	q := NewQueue(1)
	q.TryPost(LedTick{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Post(ctx, LedTick{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Post on full queue = %v, want deadline exceeded", err)
	}
}

func TestDefaultCapacity(t *testing.T) {
	if got := NewQueue(0).Cap(); got != DefaultCapacity {
		t.Fatalf("Cap = %d, want %d", got, DefaultCapacity)
	}
}

func TestParseSamplingMode(t *testing.T) {
	for _, m := range []SamplingMode{SamplingAuto, SamplingOn, SamplingOff} {
		got, err := ParseSamplingMode(m.String())
		if err != nil || got != m {
			t.Fatalf("ParseSamplingMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseSamplingMode("sometimes"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
