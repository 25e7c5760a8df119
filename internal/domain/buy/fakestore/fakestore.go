// Package fakestore is an in-memory buy.Repository for package tests.
package fakestore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/buy"
)

type Store struct {
	mu    sync.Mutex
	byID  map[string]buy.Buy
	Clock func() time.Time
}

func New() *Store {
	return &Store{byID: map[string]buy.Buy{}, Clock: time.Now}
}

func (s *Store) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Store) Create(_ context.Context, b buy.Buy) (buy.Buy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.Status == "" {
		b.Status = buy.Pending
	}
	s.byID[b.ID] = b
	return b, nil
}

func (s *Store) ByID(_ context.Context, id string) (buy.Buy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return buy.Buy{}, apperr.New(apperr.NotFound, "buy %s not found", id)
	}
	return b, nil
}

func (s *Store) HasActiveBuyFor(_ context.Context, advertisementID, addressBuy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.byID {
		if b.AdvertisementID == advertisementID && b.AddressBuy == addressBuy && !b.IsFinal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) HasNonFinalBuyFor(_ context.Context, advertisementID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.byID {
		if b.AdvertisementID == advertisementID && !b.IsFinal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) transition(id string, matches func(buy.Buy) bool, to buy.Status, mutate func(*buy.Buy)) (*buy.Buy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok || !matches(b) {
		return nil, nil
	}
	b.Status = to
	b.UpdatedAt = s.now()
	if mutate != nil {
		mutate(&b)
	}
	s.byID[id] = b
	return &b, nil
}

func (s *Store) Expire(_ context.Context, id string, now time.Time) (*buy.Buy, error) {
	return s.transition(id, func(b buy.Buy) bool {
		return b.Status == buy.Pending && !b.ExpiresAt.After(now)
	}, buy.Expired, nil)
}

func (s *Store) Cancel(_ context.Context, id, buyerAddr string) (*buy.Buy, error) {
	return s.transition(id, func(b buy.Buy) bool {
		return b.Status == buy.Pending && b.AddressBuy == buyerAddr
	}, buy.Cancelled, nil)
}

func (s *Store) MarkPaid(_ context.Context, id string, confirmationCode string) (*buy.Buy, error) {
	return s.transition(id, func(b buy.Buy) bool { return b.Status == buy.Pending }, buy.Paid, func(b *buy.Buy) {
		if confirmationCode != "" {
			b.PixConfirmationCode = confirmationCode
		}
	})
}

func (s *Store) MarkPaymentConfirmedWithTxn(_ context.Context, id, endToEndID string) (*buy.Buy, error) {
	return s.transition(id, func(b buy.Buy) bool { return b.Status == buy.Paid }, buy.PaymentConfirmed, func(b *buy.Buy) {
		b.PixEndToEndID = endToEndID
	})
}

func (s *Store) MarkInDispute(_ context.Context, id string) (*buy.Buy, error) {
	return s.transition(id, func(b buy.Buy) bool {
		return b.Status == buy.Pending || b.Status == buy.Paid
	}, buy.InDispute, nil)
}

func (s *Store) MarkDisputeFavorBuyer(_ context.Context, id string) (*buy.Buy, error) {
	return s.transition(id, func(b buy.Buy) bool { return b.Status == buy.InDispute }, buy.DisputeFavorBuyer, nil)
}

func (s *Store) MarkDisputeFavorSeller(_ context.Context, id string) (*buy.Buy, error) {
	return s.transition(id, func(b buy.Buy) bool { return b.Status == buy.InDispute }, buy.DisputeFavorSeller, nil)
}

func (s *Store) MarkDisputeResolvedBuyer(_ context.Context, id string) (*buy.Buy, error) {
	return s.transition(id, func(b buy.Buy) bool { return b.Status == buy.DisputeFavorBuyer }, buy.DisputeResolvedBuyer, nil)
}

func (s *Store) MarkDisputeResolvedSeller(_ context.Context, id string) (*buy.Buy, error) {
	return s.transition(id, func(b buy.Buy) bool { return b.Status == buy.DisputeFavorSeller }, buy.DisputeResolvedSeller, nil)
}

func (s *Store) IncrementVerificationAttempt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return apperr.New(apperr.NotFound, "buy %s not found", id)
	}
	b.PixVerificationAttempts++
	b.UpdatedAt = s.now()
	s.byID[id] = b
	return nil
}

func (s *Store) ListByStatus(_ context.Context, status buy.Status) ([]buy.Buy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []buy.Buy
	for _, b := range s.byID {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) ListExpirable(_ context.Context, now time.Time) ([]buy.Buy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []buy.Buy
	for _, b := range s.byID {
		if b.Status == buy.Pending && !b.ExpiresAt.After(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

var _ buy.Repository = (*Store)(nil)
