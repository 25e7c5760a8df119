// Package bankcredentialsservice stages seller bank onboarding across the
// three signed HTTP actions spec.md §6 names separately ("Configurar
// Banco", "Definir Credenciais Bancárias", "Definir Certificado"), where
// original_source's bank_credentials_service.rs does the equivalent work
// in one combined call. Each step here loads the seller's current row
// and overlays only the field that step owns, so calling Upsert with a
// partial BankCredentials never blanks out a sibling field set by an
// earlier step.
package bankcredentialsservice

import (
	"context"
	"time"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/bankcredentials"
	"github.com/b2pix/engine/internal/external"
)

type Service struct {
	creds   bankcredentials.Repository
	objects external.ObjectStorage
	clock   func() time.Time
}

func New(creds bankcredentials.Repository, objects external.ObjectStorage, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{creds: creds, objects: objects, clock: clock}
}

// current loads the seller's existing row, or a zero-value one keyed by
// sellerAddress if none exists yet — the first of the three steps a
// seller performs always starts from a blank record.
func (s *Service) current(ctx context.Context, sellerAddress string) (bankcredentials.BankCredentials, error) {
	bc, err := s.creds.BySellerAddress(ctx, sellerAddress)
	if err != nil {
		if apperr.KindOf(err) != apperr.NotFound {
			return bankcredentials.BankCredentials{}, err
		}
		return bankcredentials.BankCredentials{SellerAddress: sellerAddress}, nil
	}
	if bc == nil {
		return bankcredentials.BankCredentials{SellerAddress: sellerAddress}, nil
	}
	return *bc, nil
}

// ConfigureBank handles "B2PIX - Configurar Banco": records the EFI Pay
// client ID a seller will authenticate with.
func (s *Service) ConfigureBank(ctx context.Context, sellerAddress, clientID string) (bankcredentials.BankCredentials, error) {
	if clientID == "" {
		return bankcredentials.BankCredentials{}, apperr.New(apperr.Validation, "client_id is required")
	}
	bc, err := s.current(ctx, sellerAddress)
	if err != nil {
		return bankcredentials.BankCredentials{}, err
	}
	bc.ClientID = clientID
	return s.creds.Upsert(ctx, bc)
}

// SetCredentials handles "B2PIX - Definir Credenciais Bancárias": records
// the already-encrypted EFI Pay client secret. The signed payload carries
// the secret already encrypted and the HTTP layer passes it through
// unchanged; the service never sees plaintext.
func (s *Service) SetCredentials(ctx context.Context, sellerAddress, clientSecretEncrypted string) (bankcredentials.BankCredentials, error) {
	if clientSecretEncrypted == "" {
		return bankcredentials.BankCredentials{}, apperr.New(apperr.Validation, "client_secret is required")
	}
	bc, err := s.current(ctx, sellerAddress)
	if err != nil {
		return bankcredentials.BankCredentials{}, err
	}
	bc.ClientSecretEncrypted = clientSecretEncrypted
	return s.creds.Upsert(ctx, bc)
}

// SetCertificate handles "B2PIX - Definir Certificado": uploads the
// seller's PKCS#12 client certificate to object storage and records its
// URI. Unlike the other two steps, the payload doesn't carry the
// certificate bytes directly — the HTTP layer decodes them out of a
// base64 payload field before calling this method.
func (s *Service) SetCertificate(ctx context.Context, sellerAddress string, certBytes []byte) (bankcredentials.BankCredentials, error) {
	if len(certBytes) == 0 {
		return bankcredentials.BankCredentials{}, apperr.New(apperr.Validation, "certificate is required")
	}
	bc, err := s.current(ctx, sellerAddress)
	if err != nil {
		return bankcredentials.BankCredentials{}, err
	}
	objectURI := "certificates/" + sellerAddress + ".p12"
	if err := s.objects.Upload(ctx, objectURI, certBytes); err != nil {
		return bankcredentials.BankCredentials{}, err
	}
	bc.CertificateURI = objectURI
	return s.creds.Upsert(ctx, bc)
}
