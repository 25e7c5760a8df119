// Package deposit models AdvertisementDeposit (spec.md §3.4): the
// on-chain top-up that funds an Advertisement's available_amount.
package deposit

import (
	"context"
	"time"
)

// Status is the three-state lattice spec.md §3.4 defines: Draft ->
// Pending -> {Confirmed, Failed}; Confirmed and Failed are terminal.
type Status string

const (
	Draft     Status = "Draft"
	Pending   Status = "Pending"
	Confirmed Status = "Confirmed"
	Failed    Status = "Failed"
)

// IsTerminal reports whether s admits no further transitions.
func IsTerminal(s Status) bool {
	return s == Confirmed || s == Failed
}

// Deposit is one on-chain top-up transaction feeding an Advertisement.
type Deposit struct {
	ID                    string
	AdvertisementID       string
	SellerAddress         string
	SerializedTransaction []byte
	BlockchainTxID        string
	Amount                int64
	Status                Status
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ConfirmedAt           *time.Time
}

// Repository is the guarded-mutation port for Deposit. Create starts a
// row in Draft; the remaining operations are the atomic state
// transitions spec.md §4.6 drives from the handler and the confirmation
// poller.
type Repository interface {
	Create(ctx context.Context, d Deposit) (Deposit, error)
	ByID(ctx context.Context, id string) (Deposit, error)

	// MarkBroadcast matches {_id, status=Draft}; sets blockchain_tx_id
	// and amount, transitions to Pending.
	MarkBroadcast(ctx context.Context, id, blockchainTxID string, amount int64) (*Deposit, error)
	// MarkFailed matches {_id, status IN {Draft, Pending}}; transitions
	// to Failed.
	MarkFailed(ctx context.Context, id string) (*Deposit, error)
	// Confirm matches {_id, status=Pending}; transitions to Confirmed
	// and stamps confirmed_at.
	Confirm(ctx context.Context, id string, confirmedAt time.Time) (*Deposit, error)

	// ListPendingWithTxID supports the confirmation poller: Pending
	// deposits that already have a blockchain_tx_id to verify.
	ListPendingWithTxID(ctx context.Context) ([]Deposit, error)
}
