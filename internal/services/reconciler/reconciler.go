// Package reconciler implements the payment-verification reconciliation
// task of spec.md §4.7: for every Paid buy, match PIX receipts against
// the buy's confirmation code and pay value, then apply the decision
// table.
package reconciler

import (
	"context"
	"time"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/advertisement"
	"github.com/b2pix/engine/internal/domain/bankcredentials"
	"github.com/b2pix/engine/internal/domain/buy"
	"github.com/b2pix/engine/internal/domain/paymentrequest"
	"github.com/b2pix/engine/internal/domain/pricing"
	"github.com/b2pix/engine/internal/external"
	"github.com/b2pix/engine/internal/logger"
	"github.com/b2pix/engine/internal/pixmatch"
	"github.com/b2pix/engine/internal/services/eventutil"
)

// Service runs the reconciliation sweep over all Paid buys.
type Service struct {
	buys      buy.Repository
	ads       advertisement.Repository
	bankCreds bankcredentials.Repository
	bank      external.BankClient
	payReqs   paymentrequest.Repository
	publisher eventutil.Publisher
	clock     func() time.Time
}

func New(
	buys buy.Repository,
	ads advertisement.Repository,
	bankCreds bankcredentials.Repository,
	bank external.BankClient,
	payReqs paymentrequest.Repository,
	publisher eventutil.Publisher,
) *Service {
	return &Service{buys: buys, ads: ads, bankCreds: bankCreds, bank: bank, payReqs: payReqs, publisher: publisher, clock: time.Now}
}

// Reconcile is the periodic task body, spec.md §4.7's reconciler.
func (s *Service) Reconcile(ctx context.Context, registry eventutil.Registry) error {
	log := logger.FromContext(ctx)

	paid, err := s.buys.ListByStatus(ctx, buy.Paid)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "list paid buys")
	}
	for _, b := range paid {
		if err := s.reconcileOne(ctx, registry, b); err != nil {
			log.Warn().Err(err).Str("buy_id", b.ID).Msg("reconciler.reconcile_one_failed")
		}
	}
	return nil
}

func (s *Service) reconcileOne(ctx context.Context, registry eventutil.Registry, b buy.Buy) error {
	ad, err := s.ads.ByID(ctx, b.AdvertisementID)
	if err != nil {
		return apperr.Wrap(apperr.NotFound, err, "load advertisement %s", b.AdvertisementID)
	}
	creds, err := s.bankCreds.BySellerAddress(ctx, ad.SellerAddress)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "load bank credentials for %s", ad.SellerAddress)
	}
	if creds == nil {
		return apperr.New(apperr.Validation, "seller %s has no bank credentials on file", ad.SellerAddress)
	}

	receipts, err := s.bank.QueryPix(ctx, creds.AccessToken, b.CreatedAt.Format(isoLayout), b.UpdatedAt.Format(isoLayout))
	if err != nil {
		// Bank client error: log, retry next tick, do not increment
		// attempts — the caller's Warn log above already covers this.
		return apperr.Wrap(apperr.ExternalRetryable, err, "query pix receipts")
	}

	want := pricing.FormatCents(b.PayValueCents)
	var amountMatches []external.PixReceipt
	for _, r := range receipts {
		if r.Valor == want {
			amountMatches = append(amountMatches, r)
		}
	}

	switch {
	case b.PixConfirmationCode != "" && exactlyOneSuffixMatch(amountMatches, b.PixConfirmationCode):
		return s.confirmPayment(ctx, registry, b, suffixMatch(amountMatches, b.PixConfirmationCode))
	case b.PixConfirmationCode == "" && len(amountMatches) == 1:
		return s.markDispute(ctx, registry, b)
	case b.PixConfirmationCode == "" && len(amountMatches) > 1:
		return s.markDispute(ctx, registry, b)
	case b.PixConfirmationCode != "" && !exactlyOneSuffixMatch(amountMatches, b.PixConfirmationCode):
		return s.markDispute(ctx, registry, b)
	default:
		return s.buys.IncrementVerificationAttempt(ctx, b.ID)
	}
}

const isoLayout = "2006-01-02T15:04:05Z07:00"

func exactlyOneSuffixMatch(receipts []external.PixReceipt, confirmationCode string) bool {
	n := 0
	for _, r := range receipts {
		if pixmatch.MatchesSuffix(r.EndToEndID, confirmationCode) {
			n++
		}
	}
	return n == 1
}

func suffixMatch(receipts []external.PixReceipt, confirmationCode string) external.PixReceipt {
	for _, r := range receipts {
		if pixmatch.MatchesSuffix(r.EndToEndID, confirmationCode) {
			return r
		}
	}
	return external.PixReceipt{}
}

func (s *Service) confirmPayment(ctx context.Context, registry eventutil.Registry, b buy.Buy, receipt external.PixReceipt) error {
	log := logger.FromContext(ctx)
	confirmed, err := s.buys.MarkPaymentConfirmedWithTxn(ctx, b.ID, receipt.EndToEndID)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "mark buy %s payment confirmed", b.ID)
	}
	if confirmed == nil {
		return nil
	}
	// On PaymentConfirmed: publish a PaymentRequest transferring the
	// purchased amount to the buyer, attempted automatically first.
	created, err := s.payReqs.Create(ctx, paymentrequest.PaymentRequest{
		SourceType:              paymentrequest.SourceBuy,
		SourceID:                confirmed.ID,
		ReceiverAddress:         confirmed.AddressBuy,
		Amount:                  confirmed.Amount,
		AttemptAutomaticPayment: true,
		Status:                  paymentrequest.PendingAutomaticPayment,
	})
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "create payment request for buy %s", b.ID)
	}
	if err := eventutil.PublishPaymentRequestCreated(ctx, s.publisher, registry, s.clock, created); err != nil {
		log.Error().Err(err).Str("payment_request_id", created.ID).Msg("reconciler.publish_payment_request_created_failed")
	}
	return nil
}

func (s *Service) markDispute(ctx context.Context, registry eventutil.Registry, b buy.Buy) error {
	log := logger.FromContext(ctx)
	if _, err := s.buys.MarkInDispute(ctx, b.ID); err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "mark buy %s in dispute", b.ID)
	}
	if err := eventutil.PublishBuyDisputeOpened(ctx, s.publisher, registry, s.clock, b.ID, b.AdvertisementID); err != nil {
		log.Error().Err(err).Str("buy_id", b.ID).Msg("reconciler.publish_dispute_opened_failed")
	}
	return nil
}
