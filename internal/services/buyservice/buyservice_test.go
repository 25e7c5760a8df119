package buyservice_test

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
	"github.com/b2pix/engine/internal/domain/pricing"
	"github.com/b2pix/engine/internal/external"
	"github.com/b2pix/engine/internal/services/buyservice"
)

type fakeBank struct{}

func (fakeBank) Authenticate(context.Context, string, string, []byte) (external.BankAuth, error) {
	return external.BankAuth{AccessToken: "tok"}, nil
}
func (fakeBank) GetOrCreateRandomPixKey(context.Context, string) (string, error) { return "pix-key", nil }
func (fakeBank) QueryPix(context.Context, string, string, string) ([]external.PixReceipt, error) {
	return nil, nil
}

type fakeObjects struct{}

func (fakeObjects) Upload(context.Context, string, []byte) error           { return nil }
func (fakeObjects) Download(context.Context, string) ([]byte, error)       { return []byte("cert"), nil }

func freshCreds(ads *adfake.Store, creds *bcfake.Store, sellerAddress string) {
	_, _ = creds.Upsert(context.Background(), bankcredentials.BankCredentials{
		SellerAddress:         sellerAddress,
		ClientID:              "id",
		ClientSecretEncrypted: "secret",
		CertificateURI:        "certs/x.p12",
		AccessToken:           "tok",
		TokenExpiresAt:        time.Now().Add(time.Hour),
	})
}

func newAd(ads *adfake.Store, mode pricing.Mode) advertisement.Advertisement {
	ad, _ := ads.Create(context.Background(), advertisement.Advertisement{
		SellerAddress:     "SP-seller",
		Token:             "STX",
		Currency:          "BRL",
		Status:            advertisement.Ready,
		AvailableAmount:   1_000_000_000,
		PricingMode:       mode,
		FixedPriceCents:   500,
		OffsetBasisPoints: 0,
		PixKey:            "existing-pix-key",
		BankCredentialsID: "creds-1",
		PixKeyRefreshedAt: time.Now(),
	})
	return ad
}

func TestStart_RejectsNonPositiveAmounts(t *testing.T) {
	ads := adfake.New()
	creds := bcfake.New()
	svc := buyservice.New(buyfake.New(), ads, creds, fakeBank{}, fakeObjects{}, nil)

	_, err := svc.Start(context.Background(), "ad-1", "SP-buyer", 0, 500)
	require.Error(t, err)
}

func TestStart_FixedPricing_RejectsMismatchedQuotedPrice(t *testing.T) {
	ads := adfake.New()
	creds := bcfake.New()
	ad := newAd(ads, pricing.ModeFixed)
	freshCreds(ads, creds, ad.SellerAddress)

	svc := buyservice.New(buyfake.New(), ads, creds, fakeBank{}, fakeObjects{}, nil)
	_, err := svc.Start(context.Background(), ad.ID, "SP-buyer", 1000, 499)
	require.Error(t, err)
}

func TestStart_FixedPricing_ReservesAndCreatesBuy(t *testing.T) {
	ads := adfake.New()
	creds := bcfake.New()
	buys := buyfake.New()
	ad := newAd(ads, pricing.ModeFixed)
	freshCreds(ads, creds, ad.SellerAddress)

	svc := buyservice.New(buys, ads, creds, fakeBank{}, fakeObjects{}, nil)
	created, err := svc.Start(context.Background(), ad.ID, "SP-buyer", 1000, 500)
	require.NoError(t, err)
	assert.Equal(t, buy.Pending, created.Status)
	assert.Equal(t, int64(1000*100_000_000/500), created.Amount)

	refreshed, err := ads.ByID(context.Background(), ad.ID)
	require.NoError(t, err)
	assert.Equal(t, ad.AvailableAmount-created.Amount, refreshed.AvailableAmount)
}

func TestStart_DynamicPricing_RejectsBelowMinimumAcceptable(t *testing.T) {
	ads := adfake.New()
	creds := bcfake.New()
	ad := newAd(ads, pricing.ModeDynamic)
	freshCreds(ads, creds, ad.SellerAddress)

	quote := func(context.Context, string, string) (int64, error) { return 500, nil }
	svc := buyservice.New(buyfake.New(), ads, creds, fakeBank{}, fakeObjects{}, quote)

	minAcceptable := pricing.MinAcceptablePrice(pricing.TargetPrice(500, 0))
	_, err := svc.Start(context.Background(), ad.ID, "SP-buyer", 1000, minAcceptable-1)
	require.Error(t, err)
}

func TestStart_DynamicPricing_AcceptsAtOrAboveMinimum(t *testing.T) {
	ads := adfake.New()
	creds := bcfake.New()
	ad := newAd(ads, pricing.ModeDynamic)
	freshCreds(ads, creds, ad.SellerAddress)

	quote := func(context.Context, string, string) (int64, error) { return 500, nil }
	svc := buyservice.New(buyfake.New(), ads, creds, fakeBank{}, fakeObjects{}, quote)

	minAcceptable := pricing.MinAcceptablePrice(pricing.TargetPrice(500, 0))
	created, err := svc.Start(context.Background(), ad.ID, "SP-buyer", 1000, minAcceptable)
	require.NoError(t, err)
	assert.Equal(t, buy.Pending, created.Status)
}

func TestStart_RefreshesStalePixKeyViaBankClient(t *testing.T) {
	ads := adfake.New()
	creds := bcfake.New()
	ad, err := ads.Create(context.Background(), advertisement.Advertisement{
		SellerAddress:   "SP-seller",
		Token:           "STX",
		Currency:        "BRL",
		Status:          advertisement.Ready,
		AvailableAmount: 1_000_000_000,
		PricingMode:     pricing.ModeFixed,
		FixedPriceCents: 500,
		PixKey:          "stale-pix-key",
		// BankCredentialsID/PixKeyRefreshedAt left zero so PixKeyStale is true.
	})
	require.NoError(t, err)
	freshCreds(ads, creds, ad.SellerAddress)

	svc := buyservice.New(buyfake.New(), ads, creds, fakeBank{}, fakeObjects{}, nil)
	created, err := svc.Start(context.Background(), ad.ID, "SP-buyer", 1000, 500)
	require.NoError(t, err)
	assert.Equal(t, "pix-key", created.PixKey)
}

func TestStart_RejectsWhenSellerHasNoBankCredentials(t *testing.T) {
	ads := adfake.New()
	creds := bcfake.New()
	ad, err := ads.Create(context.Background(), advertisement.Advertisement{
		SellerAddress:   "SP-no-creds",
		Token:           "STX",
		Currency:        "BRL",
		Status:          advertisement.Ready,
		AvailableAmount: 1_000_000_000,
		PricingMode:     pricing.ModeFixed,
		FixedPriceCents: 500,
	})
	require.NoError(t, err)

	svc := buyservice.New(buyfake.New(), ads, creds, fakeBank{}, fakeObjects{}, nil)
	_, err = svc.Start(context.Background(), ad.ID, "SP-buyer", 1000, 500)
	require.Error(t, err)
}

func TestCancel_RefundsAdvertisement(t *testing.T) {
	ads := adfake.New()
	ad, err := ads.Create(context.Background(), advertisement.Advertisement{AvailableAmount: 100, Status: advertisement.Ready})
	require.NoError(t, err)

	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{AdvertisementID: ad.ID, Amount: 50, AddressBuy: "SP-buyer", Status: buy.Pending})
	require.NoError(t, err)

	svc := buyservice.New(buys, ads, bcfake.New(), fakeBank{}, fakeObjects{}, nil)
	cancelled, err := svc.Cancel(context.Background(), created.ID, "SP-buyer")
	require.NoError(t, err)
	require.NotNil(t, cancelled)

	refunded, err := ads.ByID(context.Background(), ad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), refunded.AvailableAmount)
}

func TestMarkPaid_RejectsSignerMismatch(t *testing.T) {
	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{AddressBuy: "SP-buyer", Status: buy.Pending})
	require.NoError(t, err)

	svc := buyservice.New(buys, adfake.New(), bcfake.New(), fakeBank{}, fakeObjects{}, nil)
	_, err = svc.MarkPaid(context.Background(), created.ID, "SP-someone-else", "code")
	require.Error(t, err)
}

func TestMarkPaid_AcceptsMatchingSigner(t *testing.T) {
	buys := buyfake.New()
	created, err := buys.Create(context.Background(), buy.Buy{AddressBuy: "SP-buyer", Status: buy.Pending})
	require.NoError(t, err)

	svc := buyservice.New(buys, adfake.New(), bcfake.New(), fakeBank{}, fakeObjects{}, nil)
	updated, err := svc.MarkPaid(context.Background(), created.ID, "SP-buyer", "code-1")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, buy.Paid, updated.Status)
}

func TestSweepExpired_ExpiresAndRefunds(t *testing.T) {
	ads := adfake.New()
	ad, err := ads.Create(context.Background(), advertisement.Advertisement{AvailableAmount: 0, Status: advertisement.Ready})
	require.NoError(t, err)

	buys := buyfake.New()
	_, err = buys.Create(context.Background(), buy.Buy{
		AdvertisementID: ad.ID,
		Amount:          25,
		Status:          buy.Pending,
		ExpiresAt:       time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	svc := buyservice.New(buys, ads, bcfake.New(), fakeBank{}, fakeObjects{}, nil)
	require.NoError(t, svc.SweepExpired(context.Background()))

	refunded, err := ads.ByID(context.Background(), ad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), refunded.AvailableAmount)
}
