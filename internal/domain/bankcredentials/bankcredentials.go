// Package bankcredentials models the per-seller EFI Pay OAuth2 client
// credentials (SPEC_FULL.md §3.7, supplemented from
// original_source/b2pix-server/src/features/bank_credentials): the
// bearer-token cache Advertisement and Buy both read to decide whether a
// cached PIX key is stale.
package bankcredentials

import (
	"context"
	"time"
)

// BankCredentials is one seller's EFI Pay client registration and cached
// access token.
type BankCredentials struct {
	ID                  string
	SellerAddress       string
	ClientID            string
	ClientSecretEncrypted string
	CertificateURI      string
	AccessToken         string
	TokenExpiresAt      time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TokenStale reports whether AccessToken needs a fresh authenticate()
// call before the next bank-client request.
func (b BankCredentials) TokenStale(now time.Time) bool {
	return b.AccessToken == "" || !now.Before(b.TokenExpiresAt)
}

// Repository is the persistence port for BankCredentials: one row per
// seller_address (unique index), read by Advertisement/Buy's PIX-key
// refresh path and written by the bank client's authenticate() call.
type Repository interface {
	ByID(ctx context.Context, id string) (BankCredentials, error)
	BySellerAddress(ctx context.Context, sellerAddress string) (*BankCredentials, error)
	Upsert(ctx context.Context, b BankCredentials) (BankCredentials, error)
	SetAccessToken(ctx context.Context, sellerAddress, accessToken string, expiresAt time.Time) (BankCredentials, error)
}

