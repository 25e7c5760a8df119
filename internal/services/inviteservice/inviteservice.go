// Package inviteservice wraps internal/domain/invite with the
// request-facing operations SPEC_FULL.md §3.8 supplements: issuing,
// redeeming, and revoking invite codes, plus the expiry sweep.
package inviteservice

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/invite"
)

const defaultTTL = 7 * 24 * time.Hour

// Service wraps invite.Repository with issue, redeem and revoke
// operations plus the expiry sweep.
type Service struct {
	invites invite.Repository
	clock   func() time.Time
}

func New(invites invite.Repository) *Service {
	return &Service{invites: invites, clock: time.Now}
}

// Issue creates a fresh invite code on behalf of issuedBy (the manager
// address), valid for the default 7-day window.
func (s *Service) Issue(ctx context.Context, issuedBy string) (invite.Invite, error) {
	now := s.clock()
	created, err := s.invites.Create(ctx, invite.Invite{
		Code:      uuid.NewString(),
		IssuedBy:  issuedBy,
		Status:    invite.Pending,
		ExpiresAt: now.Add(defaultTTL),
	})
	if err != nil {
		return invite.Invite{}, apperr.Wrap(apperr.ExternalRetryable, err, "issue invite")
	}
	return created, nil
}

// Redeem claims code for inviteeAddress; a nil, nil result means the
// code was already redeemed, revoked, or expired.
func (s *Service) Redeem(ctx context.Context, code, inviteeAddress string) (*invite.Invite, error) {
	redeemed, err := s.invites.Redeem(ctx, code, inviteeAddress, s.clock())
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "redeem invite %s", code)
	}
	return redeemed, nil
}

// Revoke moves a Pending invite to Revoked; a nil, nil result means the
// code was not Pending. It checks no signature itself, and no HTTP route
// calls it.
func (s *Service) Revoke(ctx context.Context, code string) (*invite.Invite, error) {
	revoked, err := s.invites.Revoke(ctx, code)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "revoke invite %s", code)
	}
	return revoked, nil
}

// SweepExpired is the supplemented periodic expiry task: Pending invites
// past their deadline are marked Expired so a stale code can never be
// redeemed by an unlucky network race with ExpiresAt.
func (s *Service) SweepExpired(ctx context.Context) error {
	_, err := s.invites.ExpireOlderThan(ctx, s.clock())
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "sweep expired invites")
	}
	return nil
}
