package httpapi

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/b2pix/engine/internal/apperr"
)

// parseCents reads fields[i] as a base-10 integer of minimal currency
// units — every amount field in a signed payload is cents, never a
// floating-point value, so a malformed or locale-formatted number is
// rejected outright rather than silently truncated.
func parseCents(f frame, i int) (int64, error) {
	raw, err := f.field(i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.Validation, err, "parse amount field")
	}
	return v, nil
}

// handleSendInvite is "B2PIX - Enviar Convite": manager-only, issues a
// fresh invite code. Fields: none beyond the fixed header.
func (s *Server) handleSendInvite(w http.ResponseWriter, r *http.Request) {
	f, err := s.verifyManager(r, actionSendInvite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := s.Invites.Issue(r.Context(), f.address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, inv)
}

// handleRedeemInvite is "B2PIX - Resgatar Convite". Fields: [code].
func (s *Server) handleRedeemInvite(w http.ResponseWriter, r *http.Request) {
	f, addr, err := s.verify(r, actionRedeemInvite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	code, err := f.field(0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := s.Invites.Redeem(r.Context(), code, addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if inv == nil {
		writeNoContent(w)
		return
	}
	writeOK(w, inv)
}

// handleConfigureBank is "B2PIX - Configurar Banco". Fields: [client_id].
func (s *Server) handleConfigureBank(w http.ResponseWriter, r *http.Request) {
	f, addr, err := s.verify(r, actionConfigureBank)
	if err != nil {
		writeError(w, r, err)
		return
	}
	clientID, err := f.field(0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bc, err := s.Banks.ConfigureBank(r.Context(), addr, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, bc)
}

// handleSetBankCredentials is "B2PIX - Definir Credenciais Bancárias".
// Fields: [client_secret_encrypted] — the HTTP edge is handed the secret
// already encrypted; this process never sees the plaintext EFI Pay
// client secret.
func (s *Server) handleSetBankCredentials(w http.ResponseWriter, r *http.Request) {
	f, addr, err := s.verify(r, actionSetCredentials)
	if err != nil {
		writeError(w, r, err)
		return
	}
	secret, err := f.field(0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bc, err := s.Banks.SetCredentials(r.Context(), addr, secret)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, bc)
}

// handleSetCertificate is "B2PIX - Definir Certificado". Fields:
// [certificate_base64] — the PKCS#12 client certificate, base64-encoded
// so it fits the line-oriented payload format.
func (s *Server) handleSetCertificate(w http.ResponseWriter, r *http.Request) {
	f, addr, err := s.verify(r, actionSetCertificate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	certB64, err := f.field(0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	certBytes, err := base64.StdEncoding.DecodeString(certB64)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.Validation, err, "decode certificate"))
		return
	}
	bc, err := s.Banks.SetCertificate(r.Context(), addr, certBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, bc)
}

// handleFinishAdvertisement is "B2PIX - Finalizar Anúncio". Fields:
// [advertisement_id]. Only the owning seller may start finishing.
func (s *Server) handleFinishAdvertisement(w http.ResponseWriter, r *http.Request) {
	f, addr, err := s.verify(r, actionFinishAd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	adID, err := f.field(0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ad, err := s.AdRepo.ByID(r.Context(), adID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ad.SellerAddress != addr {
		writeError(w, r, apperr.New(apperr.Authorization, "advertisement %s is not owned by the signer", adID))
		return
	}
	updated, err := s.Ads.StartFinishing(r.Context(), adID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, updated)
}

// handleBuy is "B2PIX - Comprar". Fields: [advertisement_id,
// pay_value_cents, quoted_price_cents].
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	f, addr, err := s.verify(r, actionBuy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	adID, err := f.field(0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payValue, err := parseCents(f, 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	quotedPrice, err := parseCents(f, 2)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.Buys.Start(r.Context(), adID, addr, payValue, quotedPrice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, b)
}

// handleMarkPaid is "B2PIX - Marcar como Pago". Fields: [buy_id,
// confirmation_code] — confirmation_code may be an empty line.
func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	f, addr, err := s.verify(r, actionMarkPaid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	buyID, err := f.field(0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	confirmationCode := f.fieldOr(1, "")
	b, err := s.Buys.MarkPaid(r.Context(), buyID, addr, confirmationCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if b == nil {
		writeNoContent(w)
		return
	}
	writeOK(w, b)
}

// handleCancelBuy is "B2PIX - Cancelar Compra". Fields: [buy_id].
func (s *Server) handleCancelBuy(w http.ResponseWriter, r *http.Request) {
	f, addr, err := s.verify(r, actionCancelBuy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	buyID, err := f.field(0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.Buys.Cancel(r.Context(), buyID, addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if b == nil {
		writeNoContent(w)
		return
	}
	writeOK(w, b)
}

// handleResolveDispute is "B2PIX - Resolver Disputa": manager-only.
// Fields: [buy_id, resolution] where resolution is "buyer" or "seller".
func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	f, err := s.verifyManager(r, actionResolveDispute)
	if err != nil {
		writeError(w, r, err)
		return
	}
	buyID, err := f.field(0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resolution, err := f.field(1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.Disputes.Resolve(r.Context(), buyID, resolution)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, b)
}
