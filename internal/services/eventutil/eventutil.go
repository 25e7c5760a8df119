// Package eventutil is the narrow publish-on-creation helper shared by
// the service packages that raise PaymentRequestCreated and
// BuyDisputeOpened: every producer appends through the same two narrow
// ports depositservice already established, so the notify consumers
// never need to know which service raised the event.
package eventutil

import (
	"context"
	"time"

	"github.com/b2pix/engine/internal/domain/paymentrequest"
	"github.com/b2pix/engine/internal/events"
)

// Publisher is the narrow slice of events.Store a producer needs:
// append-only, no consumer bookkeeping.
type Publisher interface {
	Append(ctx context.Context, evt events.Event, consumerEndpoints []string) (string, error)
}

// Registry resolves which handlers should receive a freshly published
// event, so producers don't need to know the full handler set.
type Registry interface {
	EndpointsFor(eventName string) []string
}

// PublishPaymentRequestCreated raises the event automaticpay.HandleCreated
// and the payment-success email handler both subscribe to.
func PublishPaymentRequestCreated(ctx context.Context, pub Publisher, registry Registry, clock func() time.Time, pr paymentrequest.PaymentRequest) error {
	evt := events.Event{
		EventName:     events.PaymentRequestCreated,
		AggregateType: "PaymentRequest",
		AggregateID:   pr.ID,
		EventData: map[string]interface{}{
			"payment_request_id": pr.ID,
			"source_type":        string(pr.SourceType),
			"source_id":          pr.SourceID,
		},
		DateMs: clock().UnixMilli(),
	}
	_, err := pub.Append(ctx, evt, registry.EndpointsFor(evt.EventName))
	return err
}

// PublishBuyDisputeOpened raises the event the dispute Trello handler
// subscribes to.
func PublishBuyDisputeOpened(ctx context.Context, pub Publisher, registry Registry, clock func() time.Time, buyID, advertisementID string) error {
	evt := events.Event{
		EventName:     events.BuyDisputeOpened,
		AggregateType: "Buy",
		AggregateID:   buyID,
		EventData: map[string]interface{}{
			"buy_id":           buyID,
			"advertisement_id": advertisementID,
		},
		DateMs: clock().UnixMilli(),
	}
	_, err := pub.Append(ctx, evt, registry.EndpointsFor(evt.EventName))
	return err
}
