// Package advertisement models the Advertisement aggregate (spec.md §3.3):
// a seller's standing offer to sell crypto for PIX, its status lattice,
// and the storage-layer guarded mutations of spec.md §4.5.
package advertisement

import (
	"context"
	"time"

	"github.com/b2pix/engine/internal/domain/pricing"
)

// Status is the finite lattice spec.md §3.3 defines.
type Status string

const (
	Draft             Status = "Draft"
	Pending           Status = "Pending"
	Ready             Status = "Ready"
	ProcessingDeposit Status = "ProcessingDeposit"
	Finishing         Status = "Finishing"
	BankFailed        Status = "BankFailed"
	DepositFailed     Status = "DepositFailed"
	Closed            Status = "Closed"
	Disabled          Status = "Disabled"
)

var transitions = map[Status]map[Status]bool{
	Draft: {
		Pending:       true,
		BankFailed:    true,
		DepositFailed: true,
		Disabled:      true,
		Closed:        true,
	},
	Pending: {
		Ready:         true,
		BankFailed:    true,
		DepositFailed: true,
		Disabled:      true,
		Closed:        true,
	},
	Ready: {
		Disabled:          true,
		Finishing:         true,
		ProcessingDeposit: true,
		BankFailed:        true,
		DepositFailed:     true,
	},
	ProcessingDeposit: {
		Ready:         true,
		DepositFailed: true,
	},
	Finishing: {
		Closed: true,
	},
	Closed: {},
}

// CanTransition reports whether from->to is a permitted edge in the
// lattice. Used by in-process validation; the authoritative guard still
// lives at the storage layer per spec.md §4.5.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// IsActive mirrors spec.md §3.3's derived is_active field.
func IsActive(s Status) bool {
	switch s {
	case Draft, Pending, Ready, ProcessingDeposit:
		return true
	default:
		return false
	}
}

// Advertisement is the seller's standing sell-offer.
type Advertisement struct {
	ID                string
	SellerAddress     string
	Token             string
	Currency          string
	PricingMode       pricing.Mode
	FixedPriceCents   int64
	OffsetBasisPoints int64
	TotalDeposited    int64
	AvailableAmount   int64
	MinAmountCents    int64
	MaxAmountCents    int64
	PixKey            string
	BankCredentialsID string
	PixKeyRefreshedAt time.Time
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsActive is the instance-level convenience wrapper around the package
// function, for callers holding an Advertisement value.
func (a Advertisement) IsActive() bool { return IsActive(a.Status) }

// PixKeyStale reports whether the cached PIX key needs refreshing, per
// spec.md §4.7 step 3: older than 15 minutes, or the bank credentials on
// file have rotated.
func (a Advertisement) PixKeyStale(now time.Time, latestBankCredentialsID string) bool {
	if now.Sub(a.PixKeyRefreshedAt) > 15*time.Minute {
		return true
	}
	return a.BankCredentialsID != latestBankCredentialsID
}

// Repository is the guarded-mutation port spec.md §4.5 names for
// Advertisement. Every mutation couples its predicate and update in one
// storage operation; a nil return with a nil error means the predicate
// didn't match (expected under contention, not an error).
type Repository interface {
	Create(ctx context.Context, ad Advertisement) (Advertisement, error)
	ByID(ctx context.Context, id string) (Advertisement, error)
	ByActiveSellerAddress(ctx context.Context, sellerAddress string) (*Advertisement, error)

	// Reserve matches {_id, available_amount >= amount}; decrements
	// available_amount.
	Reserve(ctx context.Context, adID string, amount int64) (*Advertisement, error)
	// Refund unconditionally increments available_amount.
	Refund(ctx context.Context, adID string, amount int64) (Advertisement, error)
	// AddDeposit increments total_deposited and available_amount, and
	// sets status to Ready.
	AddDeposit(ctx context.Context, adID string, amount int64) (*Advertisement, error)
	// LockForDeposit matches {status=Ready}; transitions to
	// ProcessingDeposit.
	LockForDeposit(ctx context.Context, adID string) (*Advertisement, error)
	// UnlockFromDeposit matches {status=ProcessingDeposit}; transitions
	// back to Ready (spec.md §4.6 failure-unwind path).
	UnlockFromDeposit(ctx context.Context, adID string) (*Advertisement, error)
	// UpdatePricingAtomic matches {_id, seller_address, status NOT IN
	// {Finishing, Closed, Disabled}}.
	UpdatePricingAtomic(ctx context.Context, adID, sellerAddress string, mode pricing.Mode, minCents, maxCents int64) (*Advertisement, error)
	// UpdatePixKey persists a freshly fetched PIX key and its
	// provenance.
	UpdatePixKey(ctx context.Context, adID, pixKey, bankCredentialsID string, refreshedAt time.Time) (Advertisement, error)
	// TransitionStatus matches {_id, status IN allowedFrom}; moves to
	// to. Used by the finishing reaper and manual status changes not
	// covered by a dedicated guarded mutation above.
	TransitionStatus(ctx context.Context, adID string, allowedFrom []Status, to Status) (*Advertisement, error)

	// ListByStatus supports the periodic tasks that scan for ads in a
	// given state (e.g. Finishing).
	ListByStatus(ctx context.Context, status Status) ([]Advertisement, error)
}
