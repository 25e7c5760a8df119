// Package fakestore is an in-memory invite.Repository for package tests.
package fakestore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/invite"
)

type Store struct {
	mu        sync.Mutex
	byCode    map[string]invite.Invite
	Clock     func() time.Time
}

func New() *Store {
	return &Store{byCode: map[string]invite.Invite{}, Clock: time.Now}
}

func (s *Store) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Store) Create(_ context.Context, i invite.Invite) (invite.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.CreatedAt = s.now()
	if i.Status == "" {
		i.Status = invite.Pending
	}
	s.byCode[i.Code] = i
	return i, nil
}

func (s *Store) ByCode(_ context.Context, code string) (invite.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byCode[code]
	if !ok {
		return invite.Invite{}, apperr.New(apperr.NotFound, "invite %s not found", code)
	}
	return i, nil
}

func (s *Store) Redeem(_ context.Context, code, inviteeAddress string, now time.Time) (*invite.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byCode[code]
	if !ok || i.Status != invite.Pending || !i.ExpiresAt.After(now) {
		return nil, nil
	}
	i.Status = invite.Redeemed
	i.InviteeAddress = inviteeAddress
	i.RedeemedAt = &now
	s.byCode[code] = i
	return &i, nil
}

func (s *Store) Revoke(_ context.Context, code string) (*invite.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byCode[code]
	if !ok || i.Status != invite.Pending {
		return nil, nil
	}
	i.Status = invite.Revoked
	s.byCode[code] = i
	return &i, nil
}

func (s *Store) ExpireOlderThan(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for code, i := range s.byCode {
		if i.Status == invite.Pending && !i.ExpiresAt.After(now) {
			i.Status = invite.Expired
			s.byCode[code] = i
			n++
		}
	}
	return n, nil
}

var _ invite.Repository = (*Store)(nil)
