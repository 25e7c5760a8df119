// Package disputeservice completes dispute settlement per spec.md §4.8.
// Manager-signed RPCs move a Buy from InDispute into DisputeFavorBuyer or
// DisputeFavorSeller; the two periodic tasks here do the heavy lifting
// (refund or payout) outside the request path.
package disputeservice

import (
	"context"
	"time"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/advertisement"
	"github.com/b2pix/engine/internal/domain/buy"
	"github.com/b2pix/engine/internal/domain/paymentrequest"
	"github.com/b2pix/engine/internal/logger"
	"github.com/b2pix/engine/internal/services/eventutil"
)

// Service drives both dispute-settlement tasks.
type Service struct {
	buys      buy.Repository
	ads       advertisement.Repository
	payReqs   paymentrequest.Repository
	publisher eventutil.Publisher
	clock     func() time.Time
}

func New(buys buy.Repository, ads advertisement.Repository, payReqs paymentrequest.Repository, publisher eventutil.Publisher) *Service {
	return &Service{buys: buys, ads: ads, payReqs: payReqs, publisher: publisher, clock: time.Now}
}

// Resolve is the manager-signed "Resolver Disputa" RPC: moves an
// InDispute buy into DisputeFavorBuyer or DisputeFavorSeller. The two
// periodic tasks below then carry out the refund or payout this
// decision commits to.
func (s *Service) Resolve(ctx context.Context, buyID, favor string) (*buy.Buy, error) {
	var resolved *buy.Buy
	var err error
	switch favor {
	case "buyer":
		resolved, err = s.buys.MarkDisputeFavorBuyer(ctx, buyID)
	case "seller":
		resolved, err = s.buys.MarkDisputeFavorSeller(ctx, buyID)
	default:
		return nil, apperr.New(apperr.Validation, "resolution must be \"buyer\" or \"seller\", got %q", favor)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "resolve dispute for buy %s", buyID)
	}
	if resolved == nil {
		return nil, apperr.New(apperr.StateTransitionDisallowed, "buy %s is not InDispute", buyID)
	}
	return resolved, nil
}

// ResolveFavorSeller is the DisputeFavorSeller task: refund the parent
// advertisement's reservation and mark the buy DisputeResolvedSeller.
func (s *Service) ResolveFavorSeller(ctx context.Context) error {
	log := logger.FromContext(ctx)
	disputed, err := s.buys.ListByStatus(ctx, buy.DisputeFavorSeller)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "list DisputeFavorSeller buys")
	}
	for _, b := range disputed {
		resolved, err := s.buys.MarkDisputeResolvedSeller(ctx, b.ID)
		if err != nil {
			log.Error().Err(err).Str("buy_id", b.ID).Msg("disputeservice.resolve_favor_seller_error")
			continue
		}
		if resolved == nil {
			continue
		}
		if _, err := s.ads.Refund(ctx, resolved.AdvertisementID, resolved.Amount); err != nil {
			log.Error().Err(err).Str("advertisement_id", resolved.AdvertisementID).Msg("disputeservice.refund_error")
		}
	}
	return nil
}

// ResolveFavorBuyer is the DisputeFavorBuyer task: emit a PaymentRequest
// refunding the buyer on-chain, then mark the buy DisputeResolvedBuyer.
func (s *Service) ResolveFavorBuyer(ctx context.Context, registry eventutil.Registry) error {
	log := logger.FromContext(ctx)
	disputed, err := s.buys.ListByStatus(ctx, buy.DisputeFavorBuyer)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "list DisputeFavorBuyer buys")
	}
	for _, b := range disputed {
		created, err := s.payReqs.Create(ctx, paymentrequest.PaymentRequest{
			SourceType:              paymentrequest.SourceBuy,
			SourceID:                b.ID,
			ReceiverAddress:         b.AddressBuy,
			Amount:                  b.Amount,
			AttemptAutomaticPayment: true,
			Status:                  paymentrequest.PendingAutomaticPayment,
		})
		if err != nil {
			log.Error().Err(err).Str("buy_id", b.ID).Msg("disputeservice.create_refund_payment_request_error")
			continue
		}
		if err := eventutil.PublishPaymentRequestCreated(ctx, s.publisher, registry, s.clock, created); err != nil {
			log.Error().Err(err).Str("payment_request_id", created.ID).Msg("disputeservice.publish_payment_request_created_failed")
		}
		if _, err := s.buys.MarkDisputeResolvedBuyer(ctx, b.ID); err != nil {
			log.Error().Err(err).Str("buy_id", b.ID).Msg("disputeservice.resolve_favor_buyer_error")
		}
	}
	return nil
}
