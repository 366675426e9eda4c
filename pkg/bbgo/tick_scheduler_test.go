package bbgo

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickScheduler_RunsTicksAndJobs(t *testing.T) {
	s := NewTickScheduler(10 * time.Millisecond)

	var ticks atomic.Int64
	var jobs atomic.Int64
	s.OnTick(func(context.Context, time.Time) { ticks.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	for i := 0; i < 5; i++ {
		s.Enqueue(func() { jobs.Add(1) })
	}

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 3 || jobs.Load() < 5 {
		select {
		case <-deadline:
			t.Fatalf("timeout: ticks=%d jobs=%d", ticks.Load(), jobs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
}

func TestTickScheduler_DrainJobsRunsAllQueued(t *testing.T) {
	s := NewTickScheduler(time.Hour) // 不依赖真实 tick

	var ran int
	for i := 0; i < 10; i++ {
		s.jobs <- func() { ran++ }
	}
	s.drainJobs()

	if ran != 10 {
		t.Fatalf("drainJobs ran %d of 10 queued jobs", ran)
	}
}

func TestTickScheduler_BeforeTickRunsFirst(t *testing.T) {
	s := NewTickScheduler(10 * time.Millisecond)

	var order []string
	done := make(chan struct{})
	s.BeforeTick(func(context.Context) {
		if len(order) < 4 {
			order = append(order, "before")
		}
	})
	s.OnTick(func(context.Context, time.Time) {
		if len(order) < 4 {
			order = append(order, "tick")
			if len(order) == 4 {
				close(done)
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler never ticked")
	}
	cancel()

	for i := 0; i < 4; i += 2 {
		if order[i] != "before" || order[i+1] != "tick" {
			t.Fatalf("hook order wrong: %v", order)
		}
	}
}

func TestTickScheduler_RecoverFromPanics(t *testing.T) {
	s := NewTickScheduler(10 * time.Millisecond)

	var ticksAfterPanic atomic.Int64
	first := true
	s.OnTick(func(context.Context, time.Time) {
		if first {
			first = false
			panic("boom")
		}
		ticksAfterPanic.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)
	defer cancel()

	s.Enqueue(func() { panic("job boom") })

	deadline := time.After(2 * time.Second)
	for ticksAfterPanic.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("scheduler must survive panics in ticks and jobs")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
