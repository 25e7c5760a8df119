package events

import "context"

// Store is the event-store port from spec.md §4.1. append is atomic with
// respect to its consumer-row fan-out: either the event and all of its
// consumer rows are inserted, or none are.
type Store interface {
	Append(ctx context.Context, evt Event, consumerEndpoints []string) (eventID string, err error)
	FetchPending(ctx context.Context, limit int) ([]Consumer, error)
	UpdateConsumer(ctx context.Context, c Consumer) error
	ResetConsumer(ctx context.Context, consumerID string) error
	EventByID(ctx context.Context, id string) (Event, error)
	ConsumerByID(ctx context.Context, id string) (Consumer, error)
	EventsByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]Event, error)
	ConsumersByEvent(ctx context.Context, eventID string) ([]Consumer, error)
	Stats(ctx context.Context) (Stats, error)
}
