// Package fakestore is an in-memory paymentrequest.Repository for
// package tests.
package fakestore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/paymentrequest"
)

type Store struct {
	mu    sync.Mutex
	byID  map[string]paymentrequest.PaymentRequest
	Clock func() time.Time
}

func New() *Store {
	return &Store{byID: map[string]paymentrequest.PaymentRequest{}, Clock: time.Now}
}

func (s *Store) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Store) Create(_ context.Context, p paymentrequest.PaymentRequest) (paymentrequest.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		if p.AttemptAutomaticPayment {
			p.Status = paymentrequest.PendingAutomaticPayment
		} else {
			p.Status = paymentrequest.Waiting
		}
	}
	s.byID[p.ID] = p
	return p, nil
}

func (s *Store) ByID(_ context.Context, id string) (paymentrequest.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return paymentrequest.PaymentRequest{}, apperr.New(apperr.NotFound, "payment request %s not found", id)
	}
	return p, nil
}

func (s *Store) UpdateStatusAtomic(_ context.Context, id string, allowedFrom []paymentrequest.Status, to paymentrequest.Status) (*paymentrequest.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	matched := false
	for _, from := range allowedFrom {
		if p.Status == from {
			matched = true
			break
		}
	}
	if !matched {
		return nil, nil
	}
	p.Status = to
	p.UpdatedAt = s.now()
	s.byID[id] = p
	return &p, nil
}

func (s *Store) SetBroadcastTxID(_ context.Context, id, blockchainTxID string) (*paymentrequest.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok || p.Status != paymentrequest.Processing {
		return nil, nil
	}
	p.Status = paymentrequest.Broadcast
	p.BlockchainTxID = blockchainTxID
	p.UpdatedAt = s.now()
	s.byID[id] = p
	return &p, nil
}

func (s *Store) SetFailureReason(_ context.Context, id string, allowedFrom []paymentrequest.Status, reason string) (*paymentrequest.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	matched := false
	for _, from := range allowedFrom {
		if p.Status == from {
			matched = true
			break
		}
	}
	if !matched {
		return nil, nil
	}
	p.Status = paymentrequest.Failed
	p.FailureReason = reason
	p.UpdatedAt = s.now()
	s.byID[id] = p
	return &p, nil
}

func (s *Store) ListByStatus(_ context.Context, status paymentrequest.Status) ([]paymentrequest.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []paymentrequest.PaymentRequest
	for _, p := range s.byID {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ListStaleProcessingOrPendingAutomatic(_ context.Context, olderThan time.Time) ([]paymentrequest.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []paymentrequest.PaymentRequest
	for _, p := range s.byID {
		if p.Status == paymentrequest.PendingAutomaticPayment && !p.UpdatedAt.After(olderThan) {
			out = append(out, p)
		}
	}
	return out, nil
}

var _ paymentrequest.Repository = (*Store)(nil)
