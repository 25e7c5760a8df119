// Package fakestore is an in-memory bankcredentials.Repository for
// package tests.
package fakestore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/bankcredentials"
)

type Store struct {
	mu            sync.Mutex
	byID          map[string]bankcredentials.BankCredentials
	bySellerIndex map[string]string
	Clock         func() time.Time
}

func New() *Store {
	return &Store{
		byID:          map[string]bankcredentials.BankCredentials{},
		bySellerIndex: map[string]string{},
		Clock:         time.Now,
	}
}

func (s *Store) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Store) ByID(_ context.Context, id string) (bankcredentials.BankCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return bankcredentials.BankCredentials{}, apperr.New(apperr.NotFound, "bank credentials %s not found", id)
	}
	return b, nil
}

func (s *Store) BySellerAddress(_ context.Context, sellerAddress string) (*bankcredentials.BankCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySellerIndex[sellerAddress]
	if !ok {
		return nil, nil
	}
	out := s.byID[id]
	return &out, nil
}

func (s *Store) Upsert(_ context.Context, b bankcredentials.BankCredentials) (bankcredentials.BankCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if id, ok := s.bySellerIndex[b.SellerAddress]; ok {
		existing := s.byID[id]
		existing.ClientID = b.ClientID
		existing.ClientSecretEncrypted = b.ClientSecretEncrypted
		existing.CertificateURI = b.CertificateURI
		existing.UpdatedAt = now
		s.byID[id] = existing
		return existing, nil
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt, b.UpdatedAt = now, now
	s.byID[b.ID] = b
	s.bySellerIndex[b.SellerAddress] = b.ID
	return b, nil
}

func (s *Store) SetAccessToken(_ context.Context, sellerAddress, accessToken string, expiresAt time.Time) (bankcredentials.BankCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySellerIndex[sellerAddress]
	if !ok {
		return bankcredentials.BankCredentials{}, apperr.New(apperr.NotFound, "bank credentials for seller %s not found", sellerAddress)
	}
	b := s.byID[id]
	b.AccessToken = accessToken
	b.TokenExpiresAt = expiresAt
	b.UpdatedAt = s.now()
	s.byID[id] = b
	return b, nil
}

var _ bankcredentials.Repository = (*Store)(nil)
