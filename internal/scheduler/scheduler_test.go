package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/b2pix/engine/internal/scheduler"
)

func TestRun_StaggersFirstInvocationByIndex(t *testing.T) {
	var mu sync.Mutex
	firstCallAt := map[string]time.Time{}
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := firstCallAt[name]; !ok {
			firstCallAt[name] = time.Now()
		}
	}

	start := time.Now()
	s := scheduler.New(30*time.Millisecond,
		scheduler.Task{Name: "first", Interval: time.Hour, Run: func(context.Context) error {
			record("first")
			return nil
		}},
		scheduler.Task{Name: "second", Interval: time.Hour, Run: func(context.Context) error {
			record("second")
			return nil
		}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, firstCallAt, "first")
	assert.Contains(t, firstCallAt, "second")
	assert.Less(t, firstCallAt["first"].Sub(start), 20*time.Millisecond, "un-staggered task should fire almost immediately")
	assert.GreaterOrEqual(t, firstCallAt["second"].Sub(start), 25*time.Millisecond, "second task waits index*StaggerDelay before its first run")
}

func TestRun_PanickingTaskDoesNotStopItsOwnTickerOrOtherTasks(t *testing.T) {
	var panicking atomic.Int32
	var steady atomic.Int32

	s := scheduler.New(0,
		scheduler.Task{Name: "panics", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
			panicking.Add(1)
			panic("boom")
		}},
		scheduler.Task{Name: "steady", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
			steady.Add(1)
			return nil
		}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.GreaterOrEqual(t, panicking.Load(), int32(2), "the panicking task keeps getting invoked on its own ticker")
	assert.GreaterOrEqual(t, steady.Load(), int32(2), "a sibling task is unaffected by another task's panic")
}

func TestRun_TaskErrorDoesNotStopSubsequentInvocations(t *testing.T) {
	var calls atomic.Int32

	s := scheduler.New(0, scheduler.Task{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			calls.Add(1)
			return errors.New("transient")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestRun_ReturnsAfterContextCanceledEvenMidInterval(t *testing.T) {
	s := scheduler.New(0, scheduler.Task{
		Name:     "slow-interval",
		Interval: time.Hour,
		Run:      func(context.Context) error { return nil },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
