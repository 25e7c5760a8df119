// Package invite models the Invite aggregate (SPEC_FULL.md §3.8,
// supplemented from original_source's features/invites): manager-issued
// invitations gating who may onboard as a seller or buyer.
package invite

import (
	"context"
	"time"
)

// Status is the lattice SPEC_FULL.md §3.8 defines.
type Status string

const (
	Pending  Status = "Pending"
	Redeemed Status = "Redeemed"
	Revoked  Status = "Revoked"
	Expired  Status = "Expired"
)

var transitions = map[Status]map[Status]bool{
	Pending: {Redeemed: true, Revoked: true, Expired: true},
}

// CanTransition reports whether from->to is a permitted lattice edge.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// Invite is one manager-issued invitation code.
type Invite struct {
	ID             string
	Code           string
	IssuedBy       string
	InviteeAddress string
	Status         Status
	CreatedAt      time.Time
	ExpiresAt      time.Time
	RedeemedAt     *time.Time
}

// Repository is the guarded-mutation port for Invite, following the same
// FindOneAndUpdate(predicate, update) idiom as Buy/Advertisement.
type Repository interface {
	Create(ctx context.Context, inv Invite) (Invite, error)
	ByCode(ctx context.Context, code string) (Invite, error)

	// Redeem matches {code, status=Pending, expires_at>now}; transitions
	// to Redeemed and stamps redeemed_at and invitee_address.
	Redeem(ctx context.Context, code, inviteeAddress string, now time.Time) (*Invite, error)
	// Revoke matches {code, status=Pending}; transitions to Revoked.
	Revoke(ctx context.Context, code string) (*Invite, error)
	// ExpireOlderThan transitions every Pending invite whose
	// expires_at <= now to Expired; returns how many were updated, for
	// the periodic expiry task's logging.
	ExpireOlderThan(ctx context.Context, now time.Time) (int64, error)
}
