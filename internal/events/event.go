// Package events implements the durable two-collection event log and
// dispatcher described in spec.md §4.1–§4.3: Event + EventConsumer storage,
// a process-wide handler registry, bounded-concurrency dispatch with
// backoff, and per-aggregate replay.
package events

import "time"

// ConsumerStatus is the lifecycle of a single (event, handler) delivery.
type ConsumerStatus string

const (
	ConsumerPending ConsumerStatus = "Pending"
	ConsumerSuccess ConsumerStatus = "Success"
	ConsumerFailed  ConsumerStatus = "Failed"
	ConsumerSkipped ConsumerStatus = "Skipped"
)

// Event is immutable once inserted (spec.md §3.1 invariant).
type Event struct {
	ID             string                 `bson:"_id,omitempty"`
	EventName      string                 `bson:"event_name"`
	EventOrigin    string                 `bson:"event_origin,omitempty"`
	AggregateType  string                 `bson:"aggregate_type,omitempty"`
	AggregateID    string                 `bson:"aggregate_id,omitempty"`
	EventData      map[string]interface{} `bson:"event_data"`
	DateMs         int64                  `bson:"date"`
	CorrelationID  string                 `bson:"correlation_id,omitempty"`
	CausationID    string                 `bson:"causation_id,omitempty"`
	Metadata       map[string]string      `bson:"metadata,omitempty"`
}

// Date returns Event.DateMs as a time.Time, for callers that prefer the
// richer type at the domain boundary.
func (e Event) Date() time.Time {
	return time.UnixMilli(e.DateMs).UTC()
}

// Consumer is one row per (event, handler) pair (spec.md §3.2).
type Consumer struct {
	ID            string         `bson:"_id,omitempty"`
	EventID       string         `bson:"event_id"`
	Endpoint      string         `bson:"endpoint"`
	Status        ConsumerStatus `bson:"status"`
	Retry         int            `bson:"retry"`
	ErrorMessage  string         `bson:"error_message,omitempty"`
	ExecutionTime *int64         `bson:"execution_time_ms,omitempty"`
	NextRetryAtMs *int64         `bson:"next_retry_at,omitempty"`
	DateMs        int64          `bson:"date"`
}

// EligibleNow reports whether a Failed consumer has matured past its
// backoff window, per spec.md §4.1's fetch_pending predicate.
func (c Consumer) EligibleNow(nowMs int64) bool {
	if c.Status == ConsumerPending {
		return true
	}
	if c.Status != ConsumerFailed {
		return false
	}
	return c.NextRetryAtMs == nil || *c.NextRetryAtMs <= nowMs
}

// Stats summarizes counts by event_name and by consumer status, per
// spec.md §4.1's stats() contract.
type Stats struct {
	EventsByName     map[string]int64
	ConsumersByState map[ConsumerStatus]int64
}
