package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fairyhunter13/self-checkout-simulator/internal/config"
	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
	"github.com/fairyhunter13/self-checkout-simulator/internal/obs"
)

func batch(label string) model.DetectionBatch {
	return model.DetectionBatch{
		FrameWidth:  640,
		FrameHeight: 480,
		Detections:  []model.Detection{{Label: label, Confidence: 0.9, Box: [4]int{0, 0, 10, 10}}},
	}
}

func TestQueueNonBlockingEnqueue(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, 0)
	for i := 0; i < 1000; i++ {
		if ok := q.Enqueue(batch("mouse")); !ok {
			t.Fatalf("enqueue failed at %d", i)
		}
	}
	if q.BacklogSize() == 0 {
		t.Fatalf("expected backlog > 0")
	}
}

func TestQueueShutdownIntake(t *testing.T) {
	q := New(1)
	q.CloseIntake()
	if !q.IsShuttingDown() {
		t.Fatalf("expected shutting down true")
	}
	if ok := q.Enqueue(batch("mouse")); ok {
		t.Fatalf("expected enqueue false when shutting down")
	}
}

func TestManagerDrain(t *testing.T) {
	cfg := config.Load()
	obs.InitLogger()
	var applied atomic.Int64
	q := New(16)
	mgr := NewManager(cfg, q, SinkFunc(func(model.DetectionBatch) { applied.Add(1) }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	for i := 0; i < 100; i++ {
		_, _ = mgr.Submit(batch("mouse"))
	}
	if ok := mgr.DrainUntil(context.Background()); !ok {
		t.Fatalf("expected drain true")
	}
	if got := applied.Load(); got != 100 {
		t.Fatalf("applied=%d want 100", got)
	}
}

func TestManagerSubmitStampsSequence(t *testing.T) {
	cfg := config.Load()
	var mu sync.Mutex
	seen := map[uint64]bool{}
	q := New(4)
	mgr := NewManager(cfg, q, SinkFunc(func(b model.DetectionBatch) {
		mu.Lock()
		seen[b.Sequence] = true
		mu.Unlock()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	var last uint64
	for i := 0; i < 10; i++ {
		seq, ok := mgr.Submit(batch("laptop"))
		if !ok {
			t.Fatalf("submit rejected")
		}
		if seq <= last {
			t.Fatalf("sequence not increasing: %d after %d", seq, last)
		}
		last = seq
	}
	mgr.DrainUntil(context.Background())
	mu.Lock()
	defer mu.Unlock()
	for s := uint64(1); s <= 10; s++ {
		if !seen[s] {
			t.Fatalf("sequence %d never applied", s)
		}
	}

	mgr.CloseIntake()
	if _, ok := mgr.Submit(batch("laptop")); ok {
		t.Fatalf("expected submit rejected after CloseIntake")
	}
}
