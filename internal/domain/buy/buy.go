// Package buy models the Buy aggregate (spec.md §3.5): a single
// crypto-for-PIX purchase against an Advertisement, its status lattice,
// and the guarded mutations spec.md §4.5 names.
package buy

import (
	"context"
	"time"
)

// Status is the finite lattice spec.md §3.5 defines.
type Status string

const (
	Pending               Status = "Pending"
	Paid                  Status = "Paid"
	PaymentConfirmed      Status = "PaymentConfirmed"
	Cancelled             Status = "Cancelled"
	Expired               Status = "Expired"
	InDispute             Status = "InDispute"
	DisputeFavorBuyer     Status = "DisputeFavorBuyer"
	DisputeFavorSeller    Status = "DisputeFavorSeller"
	DisputeResolvedBuyer  Status = "DisputeResolvedBuyer"
	DisputeResolvedSeller Status = "DisputeResolvedSeller"
)

var transitions = map[Status]map[Status]bool{
	Pending: {
		Paid:      true,
		Cancelled: true,
		Expired:   true,
		InDispute: true,
	},
	Paid: {
		PaymentConfirmed: true,
		Cancelled:        true,
		InDispute:        true,
	},
	InDispute: {
		DisputeFavorBuyer:     true,
		DisputeFavorSeller:    true,
		DisputeResolvedSeller: true,
		Cancelled:             true,
	},
	DisputeFavorBuyer:  {DisputeResolvedBuyer: true},
	DisputeFavorSeller: {DisputeResolvedSeller: true},
}

// CanTransition reports whether from->to is a permitted lattice edge.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// IsFinal mirrors spec.md §3.5's derived is_final field.
func IsFinal(s Status) bool {
	switch s {
	case Cancelled, Expired, PaymentConfirmed, DisputeResolvedBuyer, DisputeResolvedSeller:
		return true
	default:
		return false
	}
}

// Buy is a single purchase reserved against an Advertisement's
// available_amount.
type Buy struct {
	ID                      string
	AdvertisementID         string
	Amount                  int64
	PriceCents              int64
	FeeCents                int64
	PayValueCents           int64
	AddressBuy              string
	PixKey                  string
	PixConfirmationCode     string
	Status                  Status
	ExpiresAt               time.Time
	PixVerificationAttempts int
	PixEndToEndID           string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// IsFinal is the instance-level convenience wrapper.
func (b Buy) IsFinal() bool { return IsFinal(b.Status) }

// Repository is the guarded-mutation port spec.md §4.5 names for Buy.
type Repository interface {
	Create(ctx context.Context, b Buy) (Buy, error)
	ByID(ctx context.Context, id string) (Buy, error)
	HasActiveBuyFor(ctx context.Context, advertisementID, addressBuy string) (bool, error)
	// HasNonFinalBuyFor reports whether advertisementID has any buy whose
	// status is not final, used by the finishing task to decide whether
	// an Advertisement in Finishing can close yet.
	HasNonFinalBuyFor(ctx context.Context, advertisementID string) (bool, error)

	// Expire matches {status=Pending, expires_at<=now}; transitions to
	// Expired, is_final=true.
	Expire(ctx context.Context, id string, now time.Time) (*Buy, error)
	// Cancel matches {status=Pending, address_buy=buyerAddr}.
	Cancel(ctx context.Context, id, buyerAddr string) (*Buy, error)
	// MarkPaid matches {status=Pending}.
	MarkPaid(ctx context.Context, id string, confirmationCode string) (*Buy, error)
	// MarkPaymentConfirmedWithTxn transitions Paid->PaymentConfirmed,
	// records the matched end-to-end id, is_final=true.
	MarkPaymentConfirmedWithTxn(ctx context.Context, id, endToEndID string) (*Buy, error)
	// MarkInDispute matches {status IN {Pending, Paid}}, the two lattice
	// edges spec.md §3.5 allows into InDispute.
	MarkInDispute(ctx context.Context, id string) (*Buy, error)
	// MarkDisputeFavorBuyer/Seller match {status=InDispute}.
	MarkDisputeFavorBuyer(ctx context.Context, id string) (*Buy, error)
	MarkDisputeFavorSeller(ctx context.Context, id string) (*Buy, error)
	// MarkDisputeResolvedBuyer/Seller match {status=DisputeFavor*}.
	MarkDisputeResolvedBuyer(ctx context.Context, id string) (*Buy, error)
	MarkDisputeResolvedSeller(ctx context.Context, id string) (*Buy, error)

	// IncrementVerificationAttempt bumps pix_verification_attempts,
	// used by the reconciler when a tick produces no decisive outcome.
	IncrementVerificationAttempt(ctx context.Context, id string) error

	ListByStatus(ctx context.Context, status Status) ([]Buy, error)
	ListExpirable(ctx context.Context, now time.Time) ([]Buy, error)
}
