// Package fakestore is an in-memory deposit.Repository for package tests.
package fakestore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/deposit"
)

type Store struct {
	mu    sync.Mutex
	byID  map[string]deposit.Deposit
	Clock func() time.Time
}

func New() *Store {
	return &Store{byID: map[string]deposit.Deposit{}, Clock: time.Now}
}

func (s *Store) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Store) Create(_ context.Context, d deposit.Deposit) (deposit.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := s.now()
	d.CreatedAt, d.UpdatedAt = now, now
	d.Status = deposit.Draft
	s.byID[d.ID] = d
	return d, nil
}

func (s *Store) ByID(_ context.Context, id string) (deposit.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return deposit.Deposit{}, apperr.New(apperr.NotFound, "deposit %s not found", id)
	}
	return d, nil
}

func (s *Store) MarkBroadcast(_ context.Context, id, blockchainTxID string, amount int64) (*deposit.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok || d.Status != deposit.Draft {
		return nil, nil
	}
	d.BlockchainTxID = blockchainTxID
	d.Amount = amount
	d.Status = deposit.Pending
	d.UpdatedAt = s.now()
	s.byID[id] = d
	return &d, nil
}

func (s *Store) MarkFailed(_ context.Context, id string) (*deposit.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok || (d.Status != deposit.Draft && d.Status != deposit.Pending) {
		return nil, nil
	}
	d.Status = deposit.Failed
	d.UpdatedAt = s.now()
	s.byID[id] = d
	return &d, nil
}

func (s *Store) Confirm(_ context.Context, id string, confirmedAt time.Time) (*deposit.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok || d.Status != deposit.Pending {
		return nil, nil
	}
	d.Status = deposit.Confirmed
	d.ConfirmedAt = &confirmedAt
	d.UpdatedAt = s.now()
	s.byID[id] = d
	return &d, nil
}

func (s *Store) ListPendingWithTxID(_ context.Context) ([]deposit.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []deposit.Deposit
	for _, d := range s.byID {
		if d.Status == deposit.Pending && d.BlockchainTxID != "" {
			out = append(out, d)
		}
	}
	return out, nil
}

var _ deposit.Repository = (*Store)(nil)
