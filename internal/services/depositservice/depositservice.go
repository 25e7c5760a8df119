// Package depositservice drives the Deposit lifecycle of spec.md §4.6:
// the AdvertisementDepositCreated handler that broadcasts a Draft deposit,
// and the periodic confirmation poller that verifies Pending deposits
// against the chain.
package depositservice

import (
	"context"
	"time"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/advertisement"
	"github.com/b2pix/engine/internal/domain/deposit"
	"github.com/b2pix/engine/internal/events"
	"github.com/b2pix/engine/internal/external"
	"github.com/b2pix/engine/internal/logger"
)

// Service wires the Deposit repository, its parent Advertisement
// repository, the chain client, and the event publisher it needs to
// drive both the created-handler and the confirmation poller.
type Service struct {
	deposits   deposit.Repository
	ads        advertisement.Repository
	chain      external.ChainClient
	publisher  Publisher
	clock      func() time.Time
}

// Publisher is the narrow slice of events.Store the service needs:
// append-only, no consumer bookkeeping.
type Publisher interface {
	Append(ctx context.Context, evt events.Event, consumerEndpoints []string) (string, error)
}

// Registry resolves which handlers should receive a freshly published
// event, so Service doesn't need to know the full handler set.
type Registry interface {
	EndpointsFor(eventName string) []string
}

func New(deposits deposit.Repository, ads advertisement.Repository, chain external.ChainClient, publisher Publisher) *Service {
	return &Service{deposits: deposits, ads: ads, chain: chain, publisher: publisher, clock: time.Now}
}

// publish appends evt with the consumer rows the registry currently
// claims for its name.
func (s *Service) publish(ctx context.Context, registry Registry, evt events.Event) error {
	endpoints := registry.EndpointsFor(evt.EventName)
	evt.DateMs = s.clock().UnixMilli()
	_, err := s.publisher.Append(ctx, evt, endpoints)
	return err
}

// Create records a Draft deposit against adID and publishes
// AdvertisementDepositCreated.
func (s *Service) Create(ctx context.Context, registry Registry, adID, sellerAddress string, serializedTx []byte) (deposit.Deposit, error) {
	d, err := s.deposits.Create(ctx, deposit.Deposit{
		AdvertisementID:       adID,
		SellerAddress:         sellerAddress,
		SerializedTransaction: serializedTx,
	})
	if err != nil {
		return deposit.Deposit{}, apperr.Wrap(apperr.ExternalRetryable, err, "create deposit")
	}
	if err := s.publish(ctx, registry, events.Event{
		EventName:     events.AdvertisementDepositCreated,
		AggregateType: "Deposit",
		AggregateID:   d.ID,
		EventData:     map[string]interface{}{"deposit_id": d.ID, "advertisement_id": adID},
	}); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("deposit_id", d.ID).Msg("depositservice.publish_created_failed")
	}
	return d, nil
}

// HandleCreated is the AdvertisementDepositCreatedHandler from spec.md
// §4.6: loads the Draft deposit, broadcasts it, and records the outcome.
func (s *Service) HandleCreated(ctx context.Context, depositID string) error {
	log := logger.FromContext(ctx)

	d, err := s.deposits.ByID(ctx, depositID)
	if err != nil {
		return apperr.Wrap(apperr.NotFound, err, "load deposit %s", depositID)
	}
	if d.Status != deposit.Draft {
		return nil // already processed; at-least-once delivery, not an error
	}

	result, err := s.chain.Broadcast(ctx, d.SerializedTransaction)
	if err != nil {
		if _, failErr := s.deposits.MarkFailed(ctx, depositID); failErr != nil {
			log.Error().Err(failErr).Str("deposit_id", depositID).Msg("depositservice.mark_failed_error")
		}
		if _, unlockErr := s.unlockParentIfProcessing(ctx, d.AdvertisementID); unlockErr != nil {
			log.Error().Err(unlockErr).Str("advertisement_id", d.AdvertisementID).Msg("depositservice.unlock_error")
		}
		log.Warn().Err(err).Str("deposit_id", depositID).Msg("depositservice.broadcast_failed")
		return nil // reflected in state; swallow per spec.md §4.6 step 3
	}

	if _, err := s.deposits.MarkBroadcast(ctx, depositID, result.TxID, result.Amount); err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "mark deposit %s broadcast", depositID)
	}
	return nil
}

func (s *Service) unlockParentIfProcessing(ctx context.Context, adID string) (*advertisement.Advertisement, error) {
	if adID == "" {
		return nil, nil
	}
	return s.ads.UnlockFromDeposit(ctx, adID)
}

// PollConfirmations is the 60s confirmation poller of spec.md §4.6: for
// every Pending deposit with a tx id, verify it against the chain.
func (s *Service) PollConfirmations(ctx context.Context, registry Registry) error {
	log := logger.FromContext(ctx)

	pending, err := s.deposits.ListPendingWithTxID(ctx)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "list pending deposits")
	}
	for _, d := range pending {
		status, err := s.chain.VerifyStatus(ctx, d.BlockchainTxID)
		if err != nil {
			log.Warn().Err(err).Str("deposit_id", d.ID).Msg("depositservice.verify_status_error")
			continue
		}
		switch {
		case status == external.TxSuccess:
			s.confirm(ctx, registry, d)
		case status == external.TxPending:
			// no change; retry next tick
		case status.Terminal():
			s.fail(ctx, d)
		default:
			// Unknown: retry next tick
		}
	}
	return nil
}

func (s *Service) confirm(ctx context.Context, registry Registry, d deposit.Deposit) {
	log := logger.FromContext(ctx)
	confirmed, err := s.deposits.Confirm(ctx, d.ID, s.clock())
	if err != nil {
		log.Error().Err(err).Str("deposit_id", d.ID).Msg("depositservice.confirm_error")
		return
	}
	if confirmed == nil {
		return
	}
	if _, err := s.ads.AddDeposit(ctx, d.AdvertisementID, d.Amount); err != nil {
		log.Error().Err(err).Str("advertisement_id", d.AdvertisementID).Msg("depositservice.add_deposit_error")
		return
	}
	if err := s.publish(ctx, registry, events.Event{
		EventName:     events.AdvertisementDepositConfirmed,
		AggregateType: "Deposit",
		AggregateID:   d.ID,
		EventData:     map[string]interface{}{"deposit_id": d.ID, "advertisement_id": d.AdvertisementID, "amount": d.Amount},
	}); err != nil {
		log.Error().Err(err).Str("deposit_id", d.ID).Msg("depositservice.publish_confirmed_failed")
	}
}

func (s *Service) fail(ctx context.Context, d deposit.Deposit) {
	log := logger.FromContext(ctx)
	if _, err := s.deposits.MarkFailed(ctx, d.ID); err != nil {
		log.Error().Err(err).Str("deposit_id", d.ID).Msg("depositservice.mark_failed_error")
		return
	}
	// Parent unwind per spec.md §4.6: ProcessingDeposit returns to Ready;
	// otherwise the advertisement itself is marked DepositFailed.
	unlocked, err := s.unlockParentIfProcessing(ctx, d.AdvertisementID)
	if err != nil {
		log.Error().Err(err).Str("advertisement_id", d.AdvertisementID).Msg("depositservice.unlock_error")
		return
	}
	if unlocked != nil {
		return
	}
	allowedFrom := []advertisement.Status{advertisement.Draft, advertisement.Pending}
	if _, err := s.ads.TransitionStatus(ctx, d.AdvertisementID, allowedFrom, advertisement.DepositFailed); err != nil {
		log.Error().Err(err).Str("advertisement_id", d.AdvertisementID).Msg("depositservice.deposit_failed_transition_error")
	}
}
