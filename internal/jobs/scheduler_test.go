package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeEngine struct {
	sweeps  atomic.Int32
	evicts  atomic.Int32
	lastTTL atomic.Int64
	err     error
}

func (f *fakeEngine) SweepWithdrawals(ctx context.Context) (int, error) {
	f.sweeps.Add(1)
	return 1, f.err
}

func (f *fakeEngine) EvictIdle(ttl time.Duration) int {
	f.evicts.Add(1)
	f.lastTTL.Store(int64(ttl))
	return 2
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := NewScheduler(&fakeEngine{}, "not a spec", time.Minute); err == nil {
		t.Fatalf("expected error for bad spec")
	}
}

func TestSchedulerRunsSweep(t *testing.T) {
	e := &fakeEngine{}
	s, err := NewScheduler(e, "@every 1s", 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for e.sweeps.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if e.sweeps.Load() == 0 {
		t.Fatalf("sweep never ran")
	}
	if e.evicts.Load() != 0 {
		t.Fatalf("eviction disabled but ran")
	}
}

func TestRunJobsDirectly(t *testing.T) {
	e := &fakeEngine{err: errors.New("store down")}
	s, err := NewScheduler(e, "@every 30s", 10*time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	s.runSweep(context.Background())
	s.runEvict()
	if e.sweeps.Load() != 1 || e.evicts.Load() != 1 || time.Duration(e.lastTTL.Load()) != 10*time.Minute {
		t.Fatalf("unexpected calls: sweeps=%d evicts=%d", e.sweeps.Load(), e.evicts.Load())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.runSweep(ctx)
	if e.sweeps.Load() != 1 {
		t.Fatalf("sweep must not run after shutdown")
	}
}

func TestEvictEvery(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		30 * time.Second: time.Minute,
		30 * time.Minute: 15 * time.Minute,
	}
	for ttl, want := range cases {
		if got := evictEvery(ttl); got != want {
			t.Fatalf("evictEvery(%s) = %s, want %s", ttl, got, want)
		}
	}
}
