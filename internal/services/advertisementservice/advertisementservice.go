// Package advertisementservice wraps the Advertisement guarded mutations
// with the request-facing operations spec.md §4 names: pricing updates
// and the Finishing-reaper periodic task of spec.md §4.9.
package advertisementservice

import (
	"context"
	"time"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/advertisement"
	"github.com/b2pix/engine/internal/domain/buy"
	"github.com/b2pix/engine/internal/domain/paymentrequest"
	"github.com/b2pix/engine/internal/domain/pricing"
	"github.com/b2pix/engine/internal/logger"
	"github.com/b2pix/engine/internal/services/eventutil"
)

// Service wraps Advertisement with the Buy and PaymentRequest
// repositories the finishing task needs to decide and act.
type Service struct {
	ads       advertisement.Repository
	buys      buy.Repository
	payReqs   paymentrequest.Repository
	publisher eventutil.Publisher
	clock     func() time.Time
}

func New(ads advertisement.Repository, buys buy.Repository, payReqs paymentrequest.Repository, publisher eventutil.Publisher) *Service {
	return &Service{ads: ads, buys: buys, payReqs: payReqs, publisher: publisher, clock: time.Now}
}

// UpdatePricing is the guarded pricing-update RPC: only the owning
// seller may change min/max and pricing mode, and only while the
// advertisement isn't already winding down.
func (s *Service) UpdatePricing(ctx context.Context, adID, sellerAddress string, mode pricing.Mode, minCents, maxCents int64) (*advertisement.Advertisement, error) {
	updated, err := s.ads.UpdatePricingAtomic(ctx, adID, sellerAddress, mode, minCents, maxCents)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "update pricing for advertisement %s", adID)
	}
	return updated, nil
}

// StartFinishing moves a Ready advertisement into Finishing, the "sign
// Finalizar Anúncio" entry point of spec.md §4.9.
func (s *Service) StartFinishing(ctx context.Context, adID string) (*advertisement.Advertisement, error) {
	updated, err := s.ads.TransitionStatus(ctx, adID, []advertisement.Status{advertisement.Ready}, advertisement.Finishing)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "start finishing advertisement %s", adID)
	}
	return updated, nil
}

// ProcessFinishing is the periodic finishing-reaper task: every Finishing
// advertisement with no non-final buys remaining is closed, and its
// remaining available_amount is routed back to the seller via a
// PaymentRequest.
func (s *Service) ProcessFinishing(ctx context.Context, registry eventutil.Registry) error {
	log := logger.FromContext(ctx)
	finishing, err := s.ads.ListByStatus(ctx, advertisement.Finishing)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "list finishing advertisements")
	}
	for _, ad := range finishing {
		hasOpen, err := s.buys.HasNonFinalBuyFor(ctx, ad.ID)
		if err != nil {
			log.Error().Err(err).Str("advertisement_id", ad.ID).Msg("advertisementservice.has_non_final_buy_error")
			continue
		}
		if hasOpen {
			continue
		}
		closed, err := s.ads.TransitionStatus(ctx, ad.ID, []advertisement.Status{advertisement.Finishing}, advertisement.Closed)
		if err != nil {
			log.Error().Err(err).Str("advertisement_id", ad.ID).Msg("advertisementservice.close_error")
			continue
		}
		if closed == nil {
			continue
		}
		if closed.AvailableAmount <= 0 {
			continue
		}
		created, err := s.payReqs.Create(ctx, paymentrequest.PaymentRequest{
			SourceType:              paymentrequest.SourceAdvertisement,
			SourceID:                closed.ID,
			ReceiverAddress:         closed.SellerAddress,
			Amount:                  closed.AvailableAmount,
			AttemptAutomaticPayment: true,
			Status:                  paymentrequest.PendingAutomaticPayment,
		})
		if err != nil {
			log.Error().Err(err).Str("advertisement_id", ad.ID).Msg("advertisementservice.create_payout_error")
			continue
		}
		if err := eventutil.PublishPaymentRequestCreated(ctx, s.publisher, registry, s.clock, created); err != nil {
			log.Error().Err(err).Str("payment_request_id", created.ID).Msg("advertisementservice.publish_payment_request_created_failed")
		}
	}
	return nil
}
