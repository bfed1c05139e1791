package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingExpirer struct {
	calls atomic.Int32
	ttl   atomic.Int64
}

func (c *countingExpirer) ExpireStaleOrders(_ context.Context, ttl time.Duration) (int, error) {
	c.calls.Add(1)
	c.ttl.Store(int64(ttl))
	return 0, nil
}

func TestExpirySweepRunsPeriodically(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	exp := &countingExpirer{}
	if err := s.ScheduleExpirySweep(context.Background(), exp, 15*time.Minute, 20*time.Millisecond); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Start()
	defer s.Shutdown()

	deadline := time.Now().Add(3 * time.Second)
	for exp.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep ran %d times", exp.calls.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if time.Duration(exp.ttl.Load()) != 15*time.Minute {
		t.Fatalf("sweep got ttl %s", time.Duration(exp.ttl.Load()))
	}
}

func TestExpirySweepDisabledWithoutTTL(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer s.Shutdown()
	if err := s.ScheduleExpirySweep(context.Background(), &countingExpirer{}, 0, time.Second); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if s.Jobs() != 0 {
		t.Fatalf("expected no jobs, got %d", s.Jobs())
	}
}
