package events

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/logger"
)

// DispatcherConfig tunes the poll loop, per spec.md §4.3.
type DispatcherConfig struct {
	BatchSize              int
	PollInterval           time.Duration
	MaxConcurrentConsumers int64
	MaxRetries             int
	BackoffBase            time.Duration
	BackoffCeiling         time.Duration
}

// Backoff computes the exponential, capped delay before retry attempt
// `retry` (0-indexed), per spec.md §4.3: min(2^retry * base, ceiling).
func (c DispatcherConfig) Backoff(retry int) time.Duration {
	mult := math.Pow(2, float64(retry))
	d := time.Duration(mult) * c.BackoffBase
	if d > c.BackoffCeiling || d <= 0 {
		return c.BackoffCeiling
	}
	return d
}

// Clock is injected so tests can control "now" deterministically.
type Clock func() time.Time

// Dispatcher polls Store for eligible consumers and executes their
// handlers with bounded concurrency (spec.md §4.3).
type Dispatcher struct {
	store    Store
	registry *Registry
	cfg      DispatcherConfig
	clock    Clock
}

// NewDispatcher wires a Dispatcher. A nil clock defaults to time.Now.
func NewDispatcher(store Store, registry *Registry, cfg DispatcherConfig, clock Clock) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{store: store, registry: registry, cfg: cfg, clock: clock}
}

// Run blocks, polling every PollInterval until ctx is canceled. Each tick
// awaits every spawned consumer task before sleeping again (spec.md §4.3
// step 4).
func (d *Dispatcher) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.tick(ctx); err != nil {
				log.Error().Err(err).Msg("dispatcher.tick_failed")
			}
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) error {
	batch, err := d.store.FetchPending(ctx, d.cfg.BatchSize)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "dispatcher: fetch pending")
	}
	if len(batch) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(d.cfg.MaxConcurrentConsumers)
	var wg sync.WaitGroup
	for _, consumer := range batch {
		consumer := consumer
		if err := sem.Acquire(ctx, 1); err != nil {
			// context canceled mid-batch; stop admitting new work. Already
			// spawned goroutines are still awaited below.
			break
		}
		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()
			d.runConsumer(ctx, consumer)
		}()
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) runConsumer(ctx context.Context, consumer Consumer) {
	log := logger.FromContext(ctx)

	evt, err := d.store.EventByID(ctx, consumer.EventID)
	if err != nil {
		consumer.Status = ConsumerFailed
		consumer.ErrorMessage = "event not found: " + err.Error()
		_ = d.store.UpdateConsumer(ctx, consumer)
		return
	}

	handler, ok := d.registry.Resolve(consumer.Endpoint, evt.EventName)
	if !ok {
		consumer.Status = ConsumerSkipped
		consumer.ErrorMessage = "Handler not found"
		consumer.DateMs = d.clock().UnixMilli()
		_ = d.store.UpdateConsumer(ctx, consumer)
		return
	}

	start := d.clock()
	err = handler.Handle(ctx, evt)
	elapsed := d.clock().Sub(start).Milliseconds()

	if err == nil {
		consumer.Status = ConsumerSuccess
		consumer.ExecutionTime = &elapsed
		consumer.ErrorMessage = ""
		consumer.NextRetryAtMs = nil
		consumer.DateMs = d.clock().UnixMilli()
		if updErr := d.store.UpdateConsumer(ctx, consumer); updErr != nil {
			log.Error().Err(updErr).Str("consumer_id", consumer.ID).Msg("dispatcher.persist_success_failed")
		}
		return
	}

	consumer.ErrorMessage = err.Error()
	consumer.DateMs = d.clock().UnixMilli()
	if consumer.Retry+1 < d.cfg.MaxRetries {
		consumer.Retry++
		consumer.Status = ConsumerFailed
		next := d.clock().Add(d.cfg.Backoff(consumer.Retry)).UnixMilli()
		consumer.NextRetryAtMs = &next
	} else {
		consumer.Status = ConsumerFailed
		consumer.NextRetryAtMs = nil
	}
	if updErr := d.store.UpdateConsumer(ctx, consumer); updErr != nil {
		log.Error().Err(updErr).Str("consumer_id", consumer.ID).Msg("dispatcher.persist_failure_failed")
	}
}

// Replay resets consumers for every event matching (aggregateType,
// aggregateID), optionally filtered to events at or after `from`. Success
// consumers are left untouched unless force is set (spec.md §4.3 Replay).
func (d *Dispatcher) Replay(ctx context.Context, aggregateType, aggregateID string, from *time.Time, force bool) error {
	evts, err := d.store.EventsByAggregate(ctx, aggregateType, aggregateID)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "replay: load events")
	}
	for _, evt := range evts {
		if from != nil && evt.Date().Before(*from) {
			continue
		}
		consumers, err := d.store.ConsumersByEvent(ctx, evt.ID)
		if err != nil {
			return apperr.Wrap(apperr.ExternalRetryable, err, "replay: load consumers for event %s", evt.ID)
		}
		for _, c := range consumers {
			if !force && c.Status == ConsumerSuccess {
				continue
			}
			if err := d.store.ResetConsumer(ctx, c.ID); err != nil {
				return apperr.Wrap(apperr.ExternalRetryable, err, "replay: reset consumer %s", c.ID)
			}
		}
	}
	return nil
}
