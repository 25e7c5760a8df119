// Package fakestore is an in-memory advertisement.Repository used by
// package tests, modeled on the fake-node pattern of
// go-fil-markets/storagemarket/testnodes: a mutable state map behind a
// mutex, with the same guarded-mutation contract the real store honors.
package fakestore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/advertisement"
	"github.com/b2pix/engine/internal/domain/pricing"
)

// Store is a concurrency-safe in-memory fake of
// advertisement.Repository.
type Store struct {
	mu    sync.Mutex
	byID  map[string]advertisement.Advertisement
	Clock func() time.Time
}

func New() *Store {
	return &Store{byID: map[string]advertisement.Advertisement{}, Clock: time.Now}
}

func (s *Store) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Store) Create(_ context.Context, a advertisement.Advertisement) (advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.byID[a.ID] = a
	return a, nil
}

func (s *Store) ByID(_ context.Context, id string) (advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return advertisement.Advertisement{}, apperr.New(apperr.NotFound, "advertisement %s not found", id)
	}
	return a, nil
}

func (s *Store) ByActiveSellerAddress(_ context.Context, sellerAddress string) (*advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.SellerAddress == sellerAddress && a.IsActive() {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) Reserve(_ context.Context, adID string, amount int64) (*advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[adID]
	if !ok || a.AvailableAmount < amount {
		return nil, nil
	}
	a.AvailableAmount -= amount
	a.UpdatedAt = s.now()
	s.byID[adID] = a
	return &a, nil
}

func (s *Store) Refund(_ context.Context, adID string, amount int64) (advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[adID]
	if !ok {
		return advertisement.Advertisement{}, apperr.New(apperr.NotFound, "advertisement %s not found", adID)
	}
	a.AvailableAmount += amount
	a.UpdatedAt = s.now()
	s.byID[adID] = a
	return a, nil
}

func (s *Store) AddDeposit(_ context.Context, adID string, amount int64) (*advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[adID]
	if !ok {
		return nil, nil
	}
	a.TotalDeposited += amount
	a.AvailableAmount += amount
	a.Status = advertisement.Ready
	a.UpdatedAt = s.now()
	s.byID[adID] = a
	return &a, nil
}

func (s *Store) LockForDeposit(_ context.Context, adID string) (*advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[adID]
	if !ok || a.Status != advertisement.Ready {
		return nil, nil
	}
	a.Status = advertisement.ProcessingDeposit
	a.UpdatedAt = s.now()
	s.byID[adID] = a
	return &a, nil
}

func (s *Store) UnlockFromDeposit(_ context.Context, adID string) (*advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[adID]
	if !ok || a.Status != advertisement.ProcessingDeposit {
		return nil, nil
	}
	a.Status = advertisement.Ready
	a.UpdatedAt = s.now()
	s.byID[adID] = a
	return &a, nil
}

func (s *Store) UpdatePricingAtomic(_ context.Context, adID, sellerAddress string, mode pricing.Mode, minCents, maxCents int64) (*advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[adID]
	if !ok || a.SellerAddress != sellerAddress {
		return nil, nil
	}
	switch a.Status {
	case advertisement.Finishing, advertisement.Closed, advertisement.Disabled:
		return nil, nil
	}
	a.PricingMode = mode
	a.MinAmountCents = minCents
	a.MaxAmountCents = maxCents
	a.UpdatedAt = s.now()
	s.byID[adID] = a
	return &a, nil
}

func (s *Store) UpdatePixKey(_ context.Context, adID, pixKey, bankCredentialsID string, refreshedAt time.Time) (advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[adID]
	if !ok {
		return advertisement.Advertisement{}, apperr.New(apperr.NotFound, "advertisement %s not found", adID)
	}
	a.PixKey = pixKey
	a.BankCredentialsID = bankCredentialsID
	a.PixKeyRefreshedAt = refreshedAt
	a.UpdatedAt = s.now()
	s.byID[adID] = a
	return a, nil
}

func (s *Store) TransitionStatus(_ context.Context, adID string, allowedFrom []advertisement.Status, to advertisement.Status) (*advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[adID]
	if !ok {
		return nil, nil
	}
	matched := false
	for _, from := range allowedFrom {
		if a.Status == from {
			matched = true
			break
		}
	}
	if !matched {
		return nil, nil
	}
	a.Status = to
	a.UpdatedAt = s.now()
	s.byID[adID] = a
	return &a, nil
}

func (s *Store) ListByStatus(_ context.Context, status advertisement.Status) ([]advertisement.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []advertisement.Advertisement
	for _, a := range s.byID {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

var _ advertisement.Repository = (*Store)(nil)
