package reconciler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2pix/engine/internal/domain/advertisement"
	adfake "github.com/b2pix/engine/internal/domain/advertisement/fakestore"
	"github.com/b2pix/engine/internal/domain/bankcredentials"
	bcfake "github.com/b2pix/engine/internal/domain/bankcredentials/fakestore"
	"github.com/b2pix/engine/internal/domain/buy"
	buyfake "github.com/b2pix/engine/internal/domain/buy/fakestore"
	"github.com/b2pix/engine/internal/domain/paymentrequest"
	payreqfake "github.com/b2pix/engine/internal/domain/paymentrequest/fakestore"
	"github.com/b2pix/engine/internal/events"
	"github.com/b2pix/engine/internal/external"
	"github.com/b2pix/engine/internal/services/reconciler"
)

type fakePublisher struct{ appended []events.Event }

func (p *fakePublisher) Append(_ context.Context, evt events.Event, _ []string) (string, error) {
	p.appended = append(p.appended, evt)
	return "evt-id", nil
}

type fakeRegistry struct{}

func (fakeRegistry) EndpointsFor(string) []string { return nil }

type fakeBank struct {
	receipts []external.PixReceipt
	err      error
}

func (f *fakeBank) Authenticate(context.Context, string, string, []byte) (external.BankAuth, error) {
	return external.BankAuth{}, nil
}
func (f *fakeBank) GetOrCreateRandomPixKey(context.Context, string) (string, error) { return "", nil }
func (f *fakeBank) QueryPix(context.Context, string, string, string) ([]external.PixReceipt, error) {
	return f.receipts, f.err
}

func seedAdAndCreds(t *testing.T, ads *adfake.Store, creds *bcfake.Store, sellerAddress string) advertisement.Advertisement {
	t.Helper()
	ad, err := ads.Create(context.Background(), advertisement.Advertisement{SellerAddress: sellerAddress, Status: advertisement.Ready, AvailableAmount: 1000})
	require.NoError(t, err)
	_, err = creds.Upsert(context.Background(), bankcredentials.BankCredentials{SellerAddress: sellerAddress, AccessToken: "tok"})
	require.NoError(t, err)
	return ad
}

func TestReconcile_ConfirmsOnExactSuffixMatch(t *testing.T) {
	ads := adfake.New()
	creds := bcfake.New()
	ad := seedAdAndCreds(t, ads, creds, "SP-seller")

	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{
		AdvertisementID:     ad.ID,
		PayValueCents:       1000,
		PixConfirmationCode: "ABC123",
		Status:              buy.Paid,
		AddressBuy:          "SP-buyer",
		Amount:              20,
	})
	require.NoError(t, err)

	bank := &fakeBank{receipts: []external.PixReceipt{{EndToEndID: "E00000000202601010000ABC123", Valor: "10.00"}}}
	payReqs := payreqfake.New()
	pub := &fakePublisher{}
	svc := reconciler.New(buys, ads, creds, bank, payReqs, pub)

	require.NoError(t, svc.Reconcile(context.Background(), fakeRegistry{}))

	confirmed, err := buys.ByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, buy.PaymentConfirmed, confirmed.Status)

	pending, err := payReqs.ListByStatus(context.Background(), paymentrequest.PendingAutomaticPayment)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "SP-buyer", pending[0].ReceiverAddress)
}

func TestReconcile_MarksDisputeOnMultipleAmountMatchesWithNoCode(t *testing.T) {
	ads := adfake.New()
	creds := bcfake.New()
	ad := seedAdAndCreds(t, ads, creds, "SP-seller")

	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{
		AdvertisementID: ad.ID,
		PayValueCents:   1000,
		Status:          buy.Paid,
	})
	require.NoError(t, err)

	bank := &fakeBank{receipts: []external.PixReceipt{
		{EndToEndID: "E1", Valor: "10.00"},
		{EndToEndID: "E2", Valor: "10.00"},
	}}
	svc := reconciler.New(buys, ads, creds, bank, payreqfake.New(), &fakePublisher{})

	require.NoError(t, svc.Reconcile(context.Background(), fakeRegistry{}))

	disputed, err := buys.ByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, buy.InDispute, disputed.Status)
}

func TestReconcile_IncrementsAttemptsWhenNothingMatches(t *testing.T) {
	ads := adfake.New()
	creds := bcfake.New()
	ad := seedAdAndCreds(t, ads, creds, "SP-seller")

	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{
		AdvertisementID: ad.ID,
		PayValueCents:   1000,
		Status:          buy.Paid,
	})
	require.NoError(t, err)

	bank := &fakeBank{receipts: nil}
	svc := reconciler.New(buys, ads, creds, bank, payreqfake.New(), &fakePublisher{})

	require.NoError(t, svc.Reconcile(context.Background(), fakeRegistry{}))

	unchanged, err := buys.ByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, buy.Paid, unchanged.Status)
	assert.Equal(t, 1, unchanged.PixVerificationAttempts)
}

func TestReconcile_MarksDisputeOnSuffixMismatch(t *testing.T) {
	ads := adfake.New()
	creds := bcfake.New()
	ad := seedAdAndCreds(t, ads, creds, "SP-seller")

	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{
		AdvertisementID:     ad.ID,
		PayValueCents:       1000,
		PixConfirmationCode: "ZZZ999",
		Status:              buy.Paid,
	})
	require.NoError(t, err)

	bank := &fakeBank{receipts: []external.PixReceipt{{EndToEndID: "E00000000202601010000ABC123", Valor: "10.00"}}}
	svc := reconciler.New(buys, ads, creds, bank, payreqfake.New(), &fakePublisher{})

	require.NoError(t, svc.Reconcile(context.Background(), fakeRegistry{}))

	disputed, err := buys.ByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, buy.InDispute, disputed.Status)
}
