package eventutil_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2pix/engine/internal/domain/paymentrequest"
	"github.com/b2pix/engine/internal/events"
	"github.com/b2pix/engine/internal/services/eventutil"
)

type fakePublisher struct {
	appended []events.Event
	err      error
}

func (p *fakePublisher) Append(_ context.Context, evt events.Event, _ []string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.appended = append(p.appended, evt)
	return "evt-id", nil
}

type fakeRegistry struct{ endpoints []string }

func (r *fakeRegistry) EndpointsFor(string) []string { return r.endpoints }

func fixedClock() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) }

func TestPublishPaymentRequestCreated(t *testing.T) {
	pub := &fakePublisher{}
	registry := &fakeRegistry{endpoints: []string{"AutomaticPayHandler"}}
	pr := paymentrequest.PaymentRequest{
		ID:         "pr-1",
		SourceType: paymentrequest.SourceBuy,
		SourceID:   "buy-1",
	}

	err := eventutil.PublishPaymentRequestCreated(context.Background(), pub, registry, fixedClock, pr)
	require.NoError(t, err)
	require.Len(t, pub.appended, 1)

	evt := pub.appended[0]
	assert.Equal(t, events.PaymentRequestCreated, evt.EventName)
	assert.Equal(t, "PaymentRequest", evt.AggregateType)
	assert.Equal(t, "pr-1", evt.AggregateID)
	assert.Equal(t, "pr-1", evt.EventData["payment_request_id"])
	assert.Equal(t, string(paymentrequest.SourceBuy), evt.EventData["source_type"])
	assert.Equal(t, "buy-1", evt.EventData["source_id"])
	assert.Equal(t, fixedClock().UnixMilli(), evt.DateMs)
}

func TestPublishBuyDisputeOpened(t *testing.T) {
	pub := &fakePublisher{}
	registry := &fakeRegistry{endpoints: []string{"DisputeTrelloHandler"}}

	err := eventutil.PublishBuyDisputeOpened(context.Background(), pub, registry, fixedClock, "buy-1", "ad-1")
	require.NoError(t, err)
	require.Len(t, pub.appended, 1)

	evt := pub.appended[0]
	assert.Equal(t, events.BuyDisputeOpened, evt.EventName)
	assert.Equal(t, "Buy", evt.AggregateType)
	assert.Equal(t, "buy-1", evt.AggregateID)
	assert.Equal(t, "buy-1", evt.EventData["buy_id"])
	assert.Equal(t, "ad-1", evt.EventData["advertisement_id"])
}

func TestPublishPaymentRequestCreated_PropagatesPublisherError(t *testing.T) {
	pub := &fakePublisher{err: assertError{}}
	registry := &fakeRegistry{}
	err := eventutil.PublishPaymentRequestCreated(context.Background(), pub, registry, fixedClock, paymentrequest.PaymentRequest{ID: "pr-1"})
	require.Error(t, err)
}

type assertError struct{}

func (assertError) Error() string { return "publish failed" }
