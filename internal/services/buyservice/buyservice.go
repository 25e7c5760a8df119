// Package buyservice drives the Buy lifecycle of spec.md §4.7: starting a
// purchase against an Advertisement's reserved available_amount,
// cancellation, buyer-signed mark-as-paid, and the expiration sweeper.
package buyservice

import (
	"context"
	"time"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/advertisement"
	"github.com/b2pix/engine/internal/domain/bankcredentials"
	"github.com/b2pix/engine/internal/domain/buy"
	"github.com/b2pix/engine/internal/domain/pricing"
	"github.com/b2pix/engine/internal/external"
	"github.com/b2pix/engine/internal/logger"
)

const buyExpiry = 15 * time.Minute

// Service wires everything BuyService.start needs per spec.md §4.7: the
// Buy and Advertisement repositories, bank credentials for PIX-key
// refresh, the bank client itself, and the cached price quoter.
type Service struct {
	buys       buy.Repository
	ads        advertisement.Repository
	bankCreds  bankcredentials.Repository
	bank       external.BankClient
	objects    external.ObjectStorage
	quote      func(ctx context.Context, token, currency string) (int64, error)
	clock      func() time.Time
}

func New(
	buys buy.Repository,
	ads advertisement.Repository,
	bankCreds bankcredentials.Repository,
	bank external.BankClient,
	objects external.ObjectStorage,
	quote func(ctx context.Context, token, currency string) (int64, error),
) *Service {
	return &Service{buys: buys, ads: ads, bankCreds: bankCreds, bank: bank, objects: objects, quote: quote, clock: time.Now}
}

// Start is BuyService.start, spec.md §4.7 steps 1-7.
func (s *Service) Start(ctx context.Context, adID, addressBuy string, payValueCents, quotedPriceCents int64) (buy.Buy, error) {
	if payValueCents <= 0 || quotedPriceCents <= 0 {
		return buy.Buy{}, apperr.New(apperr.Validation, "pay_value and quoted_price must be positive")
	}

	ad, err := s.ads.ByID(ctx, adID)
	if err != nil {
		return buy.Buy{}, apperr.Wrap(apperr.NotFound, err, "load advertisement %s", adID)
	}

	ad, err = s.refreshPixKeyIfStale(ctx, ad)
	if err != nil {
		return buy.Buy{}, err
	}

	validatedPrice, err := s.validatePrice(ctx, ad, quotedPriceCents)
	if err != nil {
		return buy.Buy{}, err
	}

	scale, err := pricing.ScaleFor(ad.Token)
	if err != nil {
		return buy.Buy{}, apperr.Wrap(apperr.Validation, err, "unsupported sell token")
	}
	amount := pricing.AmountForPayValue(payValueCents, validatedPrice, scale)

	reserved, err := s.ads.Reserve(ctx, adID, amount)
	if err != nil {
		return buy.Buy{}, apperr.Wrap(apperr.ExternalRetryable, err, "reserve advertisement %s", adID)
	}
	if reserved == nil {
		return buy.Buy{}, apperr.New(apperr.NotFound, "advertisement %s has insufficient available amount", adID)
	}

	now := s.clock()
	created, err := s.buys.Create(ctx, buy.Buy{
		AdvertisementID: adID,
		Amount:          amount,
		PriceCents:      validatedPrice,
		PayValueCents:   payValueCents,
		AddressBuy:      addressBuy,
		PixKey:          ad.PixKey,
		Status:          buy.Pending,
		ExpiresAt:       now.Add(buyExpiry),
	})
	if err != nil {
		if _, refundErr := s.ads.Refund(ctx, adID, amount); refundErr != nil {
			logger.FromContext(ctx).Error().Err(refundErr).Str("advertisement_id", adID).Msg("buyservice.refund_after_create_failure_error")
		}
		return buy.Buy{}, apperr.Wrap(apperr.ExternalRetryable, err, "create buy")
	}
	return created, nil
}

func (s *Service) refreshPixKeyIfStale(ctx context.Context, ad advertisement.Advertisement) (advertisement.Advertisement, error) {
	now := s.clock()
	creds, err := s.bankCreds.BySellerAddress(ctx, ad.SellerAddress)
	if err != nil {
		return ad, apperr.Wrap(apperr.ExternalRetryable, err, "load bank credentials for %s", ad.SellerAddress)
	}
	latestCredsID := ""
	if creds != nil {
		latestCredsID = creds.ID
	}
	if !ad.PixKeyStale(now, latestCredsID) {
		return ad, nil
	}
	if creds == nil {
		return ad, apperr.New(apperr.Validation, "seller %s has no bank credentials on file", ad.SellerAddress)
	}
	token := creds.AccessToken
	if creds.TokenStale(now) {
		cert, err := s.objects.Download(ctx, creds.CertificateURI)
		if err != nil {
			return ad, apperr.Wrap(apperr.ExternalRetryable, err, "download bank client certificate")
		}
		auth, err := s.bank.Authenticate(ctx, creds.ClientID, creds.ClientSecretEncrypted, cert)
		if err != nil {
			return ad, apperr.Wrap(apperr.ExternalRetryable, err, "authenticate bank client")
		}
		token = auth.AccessToken
		if _, err := s.bankCreds.SetAccessToken(ctx, ad.SellerAddress, token, now.Add(time.Duration(auth.TTLSeconds)*time.Second)); err != nil {
			return ad, apperr.Wrap(apperr.ExternalRetryable, err, "persist bank access token")
		}
	}
	pixKey, err := s.bank.GetOrCreateRandomPixKey(ctx, token)
	if err != nil {
		return ad, apperr.Wrap(apperr.ExternalRetryable, err, "refresh pix key")
	}
	refreshed, err := s.ads.UpdatePixKey(ctx, ad.ID, pixKey, creds.ID, now)
	if err != nil {
		return ad, apperr.Wrap(apperr.ExternalRetryable, err, "persist refreshed pix key")
	}
	return refreshed, nil
}

// validatePrice applies spec.md §4.7 step 4's per-pricing-mode rule.
func (s *Service) validatePrice(ctx context.Context, ad advertisement.Advertisement, quotedPriceCents int64) (int64, error) {
	switch ad.PricingMode {
	case pricing.ModeFixed:
		if quotedPriceCents != ad.FixedPriceCents {
			return 0, apperr.New(apperr.Validation, "quoted price %d does not match fixed price %d", quotedPriceCents, ad.FixedPriceCents)
		}
		return quotedPriceCents, nil
	case pricing.ModeDynamic:
		market, err := s.quote(ctx, ad.Token, ad.Currency)
		if err != nil {
			return 0, apperr.Wrap(apperr.ExternalRetryable, err, "fetch market price")
		}
		target := pricing.TargetPrice(market, ad.OffsetBasisPoints)
		minAcceptable := pricing.MinAcceptablePrice(target)
		if quotedPriceCents < minAcceptable {
			return 0, apperr.New(apperr.Validation, "quoted price %d below minimum acceptable %d", quotedPriceCents, minAcceptable)
		}
		return quotedPriceCents, nil
	default:
		return 0, apperr.New(apperr.Internal, "advertisement %s has unknown pricing mode %q", ad.ID, ad.PricingMode)
	}
}

// Cancel is the buyer-initiated cancel path: buy.cancel(buyer_addr), then
// refund the parent on success.
func (s *Service) Cancel(ctx context.Context, buyID, buyerAddr string) (*buy.Buy, error) {
	cancelled, err := s.buys.Cancel(ctx, buyID, buyerAddr)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "cancel buy %s", buyID)
	}
	if cancelled == nil {
		return nil, nil
	}
	if _, err := s.ads.Refund(ctx, cancelled.AdvertisementID, cancelled.Amount); err != nil {
		return cancelled, apperr.Wrap(apperr.ExternalRetryable, err, "refund advertisement %s", cancelled.AdvertisementID)
	}
	return cancelled, nil
}

// MarkPaid is the buyer-signed mark-as-paid call: the caller has already
// verified the request signature; this checks the derived address
// matches the buy's address_buy before persisting the confirmation code.
func (s *Service) MarkPaid(ctx context.Context, buyID, signerAddress, confirmationCode string) (*buy.Buy, error) {
	b, err := s.buys.ByID(ctx, buyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, err, "load buy %s", buyID)
	}
	if b.AddressBuy != signerAddress {
		return nil, apperr.New(apperr.Authorization, "signer %s does not match buy's buyer address", signerAddress)
	}
	return s.buys.MarkPaid(ctx, buyID, confirmationCode)
}

// SweepExpired is the expiration-sweeper task: Pending buys past their
// deadline are expired and their reservation refunded.
func (s *Service) SweepExpired(ctx context.Context) error {
	log := logger.FromContext(ctx)
	now := s.clock()
	expirable, err := s.buys.ListExpirable(ctx, now)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "list expirable buys")
	}
	for _, b := range expirable {
		expired, err := s.buys.Expire(ctx, b.ID, now)
		if err != nil {
			log.Error().Err(err).Str("buy_id", b.ID).Msg("buyservice.expire_error")
			continue
		}
		if expired == nil {
			continue
		}
		if _, err := s.ads.Refund(ctx, expired.AdvertisementID, expired.Amount); err != nil {
			log.Error().Err(err).Str("advertisement_id", expired.AdvertisementID).Msg("buyservice.refund_on_expiry_error")
		}
	}
	return nil
}
