package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2pix/engine/internal/domain/buy"
	buyfake "github.com/b2pix/engine/internal/domain/buy/fakestore"
	"github.com/b2pix/engine/internal/events"
	"github.com/b2pix/engine/internal/services/notify"
)

type fakeNotifier struct {
	subject, body string
	calls         int
	err           error
}

func (f *fakeNotifier) Notify(_ context.Context, subject, body string) error {
	f.calls++
	f.subject, f.body = subject, body
	return f.err
}

func TestPaymentSellerSuccessEmailHandler_SkipsNonBuySource(t *testing.T) {
	email := &fakeNotifier{}
	h := notify.NewPaymentSellerSuccessEmailHandler(email, buyfake.New())

	err := h.Handle(context.Background(), events.Event{
		EventData: map[string]interface{}{"source_type": "Advertisement", "source_id": "ad-1"},
	})
	require.NoError(t, err)
	assert.Zero(t, email.calls)
}

func TestPaymentSellerSuccessEmailHandler_EmailsOnBuySource(t *testing.T) {
	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{AdvertisementID: "ad-1", AddressBuy: "SP-buyer", Status: buy.Pending})
	require.NoError(t, err)

	email := &fakeNotifier{}
	h := notify.NewPaymentSellerSuccessEmailHandler(email, buys)

	err = h.Handle(context.Background(), events.Event{
		EventData: map[string]interface{}{"source_type": "Buy", "source_id": created.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, email.calls)
	assert.Contains(t, email.subject, created.ID)
}

func TestPaymentSellerSuccessEmailHandler_CanHandle(t *testing.T) {
	h := notify.NewPaymentSellerSuccessEmailHandler(&fakeNotifier{}, buyfake.New())
	assert.True(t, h.CanHandle(events.PaymentRequestCreated))
	assert.False(t, h.CanHandle(events.BuyDisputeOpened))
}

func TestDisputeTrelloHandler_FilesCardOnDispute(t *testing.T) {
	trello := &fakeNotifier{}
	h := notify.NewDisputeTrelloHandler(trello)

	err := h.Handle(context.Background(), events.Event{EventData: map[string]interface{}{"buy_id": "buy-1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, trello.calls)
	assert.Contains(t, trello.subject, "buy-1")
	assert.True(t, h.CanHandle(events.BuyDisputeOpened))
	assert.False(t, h.CanHandle(events.PaymentRequestCreated))
}
