// Package scheduler runs independent periodic tasks with staggered start
// times and per-task cadence, isolating panics and errors so one broken
// task never stops the others (spec.md §4.4).
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/b2pix/engine/internal/logger"
)

// Task is one periodic job: a name for logging/metrics, how often it
// runs, and the function it runs.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler staggers its tasks' first run by index*StaggerDelay so a
// cold boot doesn't fire every task in the same instant (spec.md §4.4
// step 1), then lets each task free-run on its own ticker thereafter.
type Scheduler struct {
	tasks        []Task
	StaggerDelay time.Duration
}

// New builds a Scheduler. staggerDelay of zero disables staggering.
func New(staggerDelay time.Duration, tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks, StaggerDelay: staggerDelay}
}

// Run starts every registered task in its own goroutine and blocks until
// ctx is canceled, at which point it waits for all task goroutines to
// observe cancellation and return.
func (s *Scheduler) Run(ctx context.Context) {
	done := make(chan struct{}, len(s.tasks))
	for i, t := range s.tasks {
		i, t := i, t
		go func() {
			defer func() { done <- struct{}{} }()
			s.runTask(ctx, i, t)
		}()
	}
	for range s.tasks {
		<-done
	}
}

func (s *Scheduler) runTask(ctx context.Context, index int, t Task) {
	log := logger.FromContext(ctx).With().Str("task", t.Name).Logger()

	startDelay := time.Duration(index) * s.StaggerDelay
	timer := time.NewTimer(startDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.invoke(ctx, log, t)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.invoke(ctx, log, t)
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context, log zerolog.Logger, t Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("scheduler.task_panicked")
		}
	}()
	if err := t.Run(ctx); err != nil {
		log.Error().Err(err).Msg("scheduler.task_failed")
	}
}
