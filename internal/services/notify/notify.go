// Package notify registers the email and Trello sinks as event-consumer
// handlers (spec.md §4.2), so a failed send is just a Failed consumer
// row the dispatcher retries with backoff, never a crashed goroutine.
package notify

import (
	"context"
	"fmt"

	"github.com/b2pix/engine/internal/domain/buy"
	"github.com/b2pix/engine/internal/events"
	"github.com/b2pix/engine/internal/external"
)

// PaymentSellerSuccessEmailHandler emails the configured recipient list
// (not the seller) once a Buy-sourced PaymentRequest is created, grounded on
// original_source's payment_seller_success_email_handler.rs.
type PaymentSellerSuccessEmailHandler struct {
	email external.Notifier
	buys  buy.Repository
}

func NewPaymentSellerSuccessEmailHandler(email external.Notifier, buys buy.Repository) *PaymentSellerSuccessEmailHandler {
	return &PaymentSellerSuccessEmailHandler{email: email, buys: buys}
}

func (h *PaymentSellerSuccessEmailHandler) Name() string { return "PaymentSellerSuccessEmailHandler" }

func (h *PaymentSellerSuccessEmailHandler) CanHandle(eventName string) bool {
	return eventName == events.PaymentRequestCreated
}

func (h *PaymentSellerSuccessEmailHandler) Handle(ctx context.Context, evt events.Event) error {
	sourceType, _ := evt.EventData["source_type"].(string)
	if sourceType != string(buyPaymentRequestSource) {
		return nil
	}
	buyID, _ := evt.EventData["source_id"].(string)
	if buyID == "" {
		return nil
	}
	b, err := h.buys.ByID(ctx, buyID)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("B2PIX payment confirmed for buy %s", b.ID)
	body := fmt.Sprintf("Your sale for advertisement %s has been paid and is being settled on-chain to %s.", b.AdvertisementID, b.AddressBuy)
	return h.email.Notify(ctx, subject, body)
}

const buyPaymentRequestSource = "Buy"

// DisputeTrelloHandler files a Trello card whenever a buy enters dispute,
// grounded on original_source's trello_card_service.rs.
type DisputeTrelloHandler struct {
	trello external.Notifier
}

func NewDisputeTrelloHandler(trello external.Notifier) *DisputeTrelloHandler {
	return &DisputeTrelloHandler{trello: trello}
}

func (h *DisputeTrelloHandler) Name() string { return "DisputeTrelloHandler" }

func (h *DisputeTrelloHandler) CanHandle(eventName string) bool {
	return eventName == events.BuyDisputeOpened
}

func (h *DisputeTrelloHandler) Handle(ctx context.Context, evt events.Event) error {
	buyID, _ := evt.EventData["buy_id"].(string)
	subject := fmt.Sprintf("Dispute opened: buy %s", buyID)
	body := fmt.Sprintf("Buy %s was marked InDispute and needs manual review.", buyID)
	return h.trello.Notify(ctx, subject, body)
}

var (
	_ events.Handler = (*PaymentSellerSuccessEmailHandler)(nil)
	_ events.Handler = (*DisputeTrelloHandler)(nil)
)
