package disputeservice_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2pix/engine/internal/domain/advertisement"
	adfake "github.com/b2pix/engine/internal/domain/advertisement/fakestore"
	"github.com/b2pix/engine/internal/domain/buy"
	buyfake "github.com/b2pix/engine/internal/domain/buy/fakestore"
	"github.com/b2pix/engine/internal/domain/paymentrequest"
	payreqfake "github.com/b2pix/engine/internal/domain/paymentrequest/fakestore"
	"github.com/b2pix/engine/internal/events"
	"github.com/b2pix/engine/internal/services/disputeservice"
)

type fakePublisher struct{ appended []events.Event }

func (p *fakePublisher) Append(_ context.Context, evt events.Event, _ []string) (string, error) {
	p.appended = append(p.appended, evt)
	return "evt-id", nil
}

type fakeRegistry struct{}

func (fakeRegistry) EndpointsFor(string) []string { return []string{"DisputeTrelloHandler"} }

func fixedClock() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) }

func TestResolve_RejectsUnknownFavor(t *testing.T) {
	svc := disputeservice.New(buyfake.New(), adfake.New(), payreqfake.New(), &fakePublisher{})
	_, err := svc.Resolve(context.Background(), "buy-1", "nobody")
	require.Error(t, err)
}

func TestResolve_RejectsBuyNotInDispute(t *testing.T) {
	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{Status: buy.Pending})
	require.NoError(t, err)

	svc := disputeservice.New(buys, adfake.New(), payreqfake.New(), &fakePublisher{})
	_, err = svc.Resolve(context.Background(), created.ID, "buyer")
	require.Error(t, err)
}

func TestResolve_MovesToDisputeFavorBuyer(t *testing.T) {
	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{Status: buy.InDispute})
	require.NoError(t, err)

	svc := disputeservice.New(buys, adfake.New(), payreqfake.New(), &fakePublisher{})
	resolved, err := svc.Resolve(context.Background(), created.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, buy.DisputeFavorBuyer, resolved.Status)
}

func TestResolveFavorSeller_RefundsAdvertisementAndMarksResolved(t *testing.T) {
	ads := adfake.New()
	ad, err := ads.Create(context.Background(), advertisement.Advertisement{AvailableAmount: 10000, Status: advertisement.Ready})
	require.NoError(t, err)

	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{AdvertisementID: ad.ID, Amount: 2500, Status: buy.DisputeFavorSeller})
	require.NoError(t, err)

	svc := disputeservice.New(buys, ads, payreqfake.New(), &fakePublisher{})
	require.NoError(t, svc.ResolveFavorSeller(context.Background()))

	resolved, err := buys.ByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, buy.DisputeResolvedSeller, resolved.Status)

	refunded, err := ads.ByID(context.Background(), ad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12500), refunded.AvailableAmount)
}

func TestResolveFavorBuyer_EmitsRefundPaymentRequestAndResolves(t *testing.T) {
	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{AddressBuy: "SP-buyer", Amount: 3000, Status: buy.DisputeFavorBuyer})
	require.NoError(t, err)

	payReqs := payreqfake.New()
	pub := &fakePublisher{}
	svc := disputeservice.New(buys, adfake.New(), payReqs, pub)

	require.NoError(t, svc.ResolveFavorBuyer(context.Background(), fakeRegistry{}))

	resolved, err := buys.ByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, buy.DisputeResolvedBuyer, resolved.Status)

	pending, err := payReqs.ListByStatus(context.Background(), paymentrequest.PendingAutomaticPayment)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "SP-buyer", pending[0].ReceiverAddress)
	assert.Equal(t, int64(3000), pending[0].Amount)

	require.Len(t, pub.appended, 1)
	assert.Equal(t, events.PaymentRequestCreated, pub.appended[0].EventName)
}
