// Package fakestore is an in-memory events.Store for package tests.
package fakestore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/events"
)

type Store struct {
	mu        sync.Mutex
	evts      map[string]events.Event
	consumers map[string]events.Consumer
	Clock     func() time.Time
}

func New() *Store {
	return &Store{
		evts:      map[string]events.Event{},
		consumers: map[string]events.Consumer{},
		Clock:     time.Now,
	}
}

func (s *Store) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Store) Append(_ context.Context, evt events.Event, consumerEndpoints []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	evt.DateMs = s.now().UnixMilli()
	s.evts[evt.ID] = evt

	now := s.now().UnixMilli()
	for _, endpoint := range consumerEndpoints {
		c := events.Consumer{
			ID:       uuid.NewString(),
			EventID:  evt.ID,
			Endpoint: endpoint,
			Status:   events.ConsumerPending,
			DateMs:   now,
		}
		s.consumers[c.ID] = c
	}
	return evt.ID, nil
}

func (s *Store) FetchPending(_ context.Context, limit int) ([]events.Consumer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UnixMilli()
	var out []events.Consumer
	for _, c := range s.consumers {
		if c.EligibleNow(now) {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateConsumer(_ context.Context, c events.Consumer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consumers[c.ID]; !ok {
		return apperr.New(apperr.NotFound, "consumer %s not found", c.ID)
	}
	s.consumers[c.ID] = c
	return nil
}

func (s *Store) ResetConsumer(_ context.Context, consumerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consumers[consumerID]
	if !ok {
		return apperr.New(apperr.NotFound, "consumer %s not found", consumerID)
	}
	c.Status = events.ConsumerPending
	c.Retry = 0
	c.ErrorMessage = ""
	c.NextRetryAtMs = nil
	s.consumers[consumerID] = c
	return nil
}

func (s *Store) EventByID(_ context.Context, id string) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.evts[id]
	if !ok {
		return events.Event{}, apperr.New(apperr.NotFound, "event %s not found", id)
	}
	return e, nil
}

func (s *Store) ConsumerByID(_ context.Context, id string) (events.Consumer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consumers[id]
	if !ok {
		return events.Consumer{}, apperr.New(apperr.NotFound, "consumer %s not found", id)
	}
	return c, nil
}

func (s *Store) EventsByAggregate(_ context.Context, aggregateType, aggregateID string) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.evts {
		if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ConsumersByEvent(_ context.Context, eventID string) ([]events.Consumer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Consumer
	for _, c := range s.consumers {
		if c.EventID == eventID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) Stats(_ context.Context) (events.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := events.Stats{
		EventsByName:     map[string]int64{},
		ConsumersByState: map[events.ConsumerStatus]int64{},
	}
	for _, e := range s.evts {
		stats.EventsByName[e.EventName]++
	}
	for _, c := range s.consumers {
		stats.ConsumersByState[c.Status]++
	}
	return stats, nil
}

// ConsumerFor returns the single consumer for (eventID, endpoint), for
// tests that want to assert on its post-dispatch state directly.
func (s *Store) ConsumerFor(eventID, endpoint string) (events.Consumer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.consumers {
		if c.EventID == eventID && c.Endpoint == endpoint {
			return c, true
		}
	}
	return events.Consumer{}, false
}
