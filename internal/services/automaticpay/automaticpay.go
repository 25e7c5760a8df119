// Package automaticpay drives PaymentRequest settlement per spec.md
// §4.10: the PaymentRequestCreated handler that atomically claims and
// attempts an automatic on-chain transfer, the crash-recovery retry task,
// and the transaction verifier task.
package automaticpay

import (
	"context"
	"time"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/paymentrequest"
	"github.com/b2pix/engine/internal/events"
	"github.com/b2pix/engine/internal/external"
	"github.com/b2pix/engine/internal/logger"
)

const staleClaimAge = 5 * time.Minute

// Service drives PaymentRequest settlement through the chain client.
type Service struct {
	payReqs paymentrequest.Repository
	chain   external.ChainClient
	clock   func() time.Time
}

func New(payReqs paymentrequest.Repository, chain external.ChainClient) *Service {
	return &Service{payReqs: payReqs, chain: chain, clock: time.Now}
}

// HandleCreated is the PaymentRequestCreated handler of spec.md §4.10: it
// claims a PendingAutomaticPayment request atomically and attempts the
// transfer. A nil claim means another worker already owns this request;
// that is not an error.
func (s *Service) HandleCreated(ctx context.Context, paymentRequestID string) error {
	return s.attempt(ctx, paymentRequestID)
}

// EventHandler adapts Service to events.Handler so the dispatcher can
// deliver PaymentRequestCreated straight into the automatic-pay attempt.
type EventHandler struct {
	svc *Service
}

func NewEventHandler(svc *Service) *EventHandler {
	return &EventHandler{svc: svc}
}

func (h *EventHandler) Name() string { return "AutomaticPayHandler" }

func (h *EventHandler) CanHandle(eventName string) bool {
	return eventName == events.PaymentRequestCreated
}

func (h *EventHandler) Handle(ctx context.Context, evt events.Event) error {
	id, _ := evt.EventData["payment_request_id"].(string)
	if id == "" {
		return nil
	}
	return h.svc.HandleCreated(ctx, id)
}

var _ events.Handler = (*EventHandler)(nil)

// RetryStalePending is the crash-recovery periodic task: requests stuck
// in PendingAutomaticPayment past staleClaimAge are re-attempted through
// the same atomic-claim path, which is the only admission gate — so this
// is safe even if the original attempt is merely slow, not crashed.
func (s *Service) RetryStalePending(ctx context.Context) error {
	log := logger.FromContext(ctx)
	stale, err := s.payReqs.ListStaleProcessingOrPendingAutomatic(ctx, s.clock().Add(-staleClaimAge))
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "list stale payment requests")
	}
	for _, pr := range stale {
		if pr.Status != paymentrequest.PendingAutomaticPayment {
			continue
		}
		if err := s.attempt(ctx, pr.ID); err != nil {
			log.Warn().Err(err).Str("payment_request_id", pr.ID).Msg("automaticpay.retry_failed")
		}
	}
	return nil
}

func (s *Service) attempt(ctx context.Context, paymentRequestID string) error {
	log := logger.FromContext(ctx)

	claimed, err := s.payReqs.UpdateStatusAtomic(ctx, paymentRequestID,
		[]paymentrequest.Status{paymentrequest.PendingAutomaticPayment}, paymentrequest.Processing)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "claim payment request %s", paymentRequestID)
	}
	if claimed == nil {
		return nil // already claimed by another worker
	}

	txID, err := s.chain.ValidateAndBroadcast(ctx, nil, claimed.ReceiverAddress, claimed.Amount)
	if err != nil {
		if _, failErr := s.payReqs.SetFailureReason(ctx, claimed.ID,
			[]paymentrequest.Status{paymentrequest.Processing}, err.Error()); failErr != nil {
			log.Error().Err(failErr).Str("payment_request_id", claimed.ID).Msg("automaticpay.set_failure_reason_error")
		}
		if _, createErr := s.payReqs.Create(ctx, paymentrequest.PaymentRequest{
			SourceType:              claimed.SourceType,
			SourceID:                claimed.SourceID,
			ReceiverAddress:         claimed.ReceiverAddress,
			Amount:                  claimed.Amount,
			AttemptAutomaticPayment: false,
			Status:                  paymentrequest.Waiting,
		}); createErr != nil {
			log.Error().Err(createErr).Str("payment_request_id", claimed.ID).Msg("automaticpay.create_manual_replacement_error")
		}
		return nil // reflected in state; manual replacement created
	}

	if _, err := s.payReqs.SetBroadcastTxID(ctx, claimed.ID, txID); err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "set broadcast txid for %s", claimed.ID)
	}
	return nil
}

// VerifyBroadcast is the PaymentRequest transaction verifier task (every
// 30s): for each Broadcast PR, verify its tx status and settle or
// replace it.
func (s *Service) VerifyBroadcast(ctx context.Context) error {
	log := logger.FromContext(ctx)
	broadcast, err := s.payReqs.ListByStatus(ctx, paymentrequest.Broadcast)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "list broadcast payment requests")
	}
	for _, pr := range broadcast {
		status, err := s.chain.VerifyStatus(ctx, pr.BlockchainTxID)
		if err != nil {
			log.Warn().Err(err).Str("payment_request_id", pr.ID).Msg("automaticpay.verify_status_error")
			continue
		}
		switch {
		case status == external.TxSuccess:
			if _, err := s.payReqs.UpdateStatusAtomic(ctx, pr.ID,
				[]paymentrequest.Status{paymentrequest.Broadcast}, paymentrequest.Confirmed); err != nil {
				log.Error().Err(err).Str("payment_request_id", pr.ID).Msg("automaticpay.confirm_error")
			}
		case status.Terminal():
			if _, err := s.payReqs.SetFailureReason(ctx, pr.ID,
				[]paymentrequest.Status{paymentrequest.Broadcast}, string(status)); err != nil {
				log.Error().Err(err).Str("payment_request_id", pr.ID).Msg("automaticpay.fail_error")
				continue
			}
			if _, err := s.payReqs.Create(ctx, paymentrequest.PaymentRequest{
				SourceType:              pr.SourceType,
				SourceID:                pr.SourceID,
				ReceiverAddress:         pr.ReceiverAddress,
				Amount:                  pr.Amount,
				AttemptAutomaticPayment: false,
				Status:                  paymentrequest.Waiting,
			}); err != nil {
				log.Error().Err(err).Str("payment_request_id", pr.ID).Msg("automaticpay.create_replacement_error")
			}
		}
	}
	return nil
}
