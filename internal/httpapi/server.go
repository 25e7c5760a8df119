package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/domain/advertisement"
	"github.com/b2pix/engine/internal/services/advertisementservice"
	"github.com/b2pix/engine/internal/services/bankcredentialsservice"
	"github.com/b2pix/engine/internal/services/buyservice"
	"github.com/b2pix/engine/internal/services/disputeservice"
	"github.com/b2pix/engine/internal/services/inviteservice"
	"github.com/b2pix/engine/internal/signature"
)

// Server wires the 10 signed HTTP actions spec.md §6 names to the
// service layer, and owns the one piece of state every handler needs:
// which address counts as the manager.
type Server struct {
	ManagerAddress string
	AddressVersion byte

	Invites  *inviteservice.Service
	Banks    *bankcredentialsservice.Service
	Ads      *advertisementservice.Service
	Buys     *buyservice.Service
	Disputes *disputeservice.Service

	AdRepo advertisement.Repository
}

// Router builds the chi mux: CORS, a conservative rate limit on every
// mutating route, and one POST route per signed action.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodPost, http.MethodGet},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))
	r.Use(httprate.LimitByIP(60, timestampSkew))

	r.Post("/invites/send", s.handleSendInvite)
	r.Post("/invites/redeem", s.handleRedeemInvite)
	r.Post("/bank/configure", s.handleConfigureBank)
	r.Post("/bank/credentials", s.handleSetBankCredentials)
	r.Post("/bank/certificate", s.handleSetCertificate)
	r.Post("/advertisements/finish", s.handleFinishAdvertisement)
	r.Post("/buys", s.handleBuy)
	r.Post("/buys/paid", s.handleMarkPaid)
	r.Post("/buys/cancel", s.handleCancelBuy)
	r.Post("/disputes/resolve", s.handleResolveDispute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

const (
	actionSendInvite      = "B2PIX - Enviar Convite"
	actionRedeemInvite    = "B2PIX - Resgatar Convite"
	actionConfigureBank   = "B2PIX - Configurar Banco"
	actionSetCredentials  = "B2PIX - Definir Credenciais Bancárias"
	actionSetCertificate  = "B2PIX - Definir Certificado"
	actionFinishAd        = "B2PIX - Finalizar Anúncio"
	actionBuy             = "B2PIX - Comprar"
	actionMarkPaid        = "B2PIX - Marcar como Pago"
	actionCancelBuy       = "B2PIX - Cancelar Compra"
	actionResolveDispute  = "B2PIX - Resolver Disputa"
)

// signedRequest is the {payload, signature, public_key} envelope every
// mutating endpoint expects, per spec.md §6.
type signedRequest struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

// verify decodes the request body, checks the signature over payload,
// parses its line-oriented frame, checks the action label, and derives
// the signer's address — requiring it to equal the address line the
// payload itself carries. It returns that derived address alongside the
// parsed frame so a handler never has to trust a client-supplied address
// separately from the one the signature actually committed to.
func (s *Server) verify(r *http.Request, wantAction string) (frame, string, error) {
	var body signedRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return frame{}, "", apperr.Wrap(apperr.Validation, err, "decode request body")
	}
	ok, err := signature.VerifyMessageSignatureRSV(body.Payload, body.Signature, body.PublicKey)
	if err != nil {
		return frame{}, "", apperr.Wrap(apperr.Validation, err, "verify signature")
	}
	if !ok {
		return frame{}, "", apperr.New(apperr.Authorization, "signature does not match payload")
	}
	f, err := parseFrame(body.Payload)
	if err != nil {
		return frame{}, "", err
	}
	if err := f.expect(wantAction); err != nil {
		return frame{}, "", err
	}
	derived, err := signature.DeriveAddress(body.PublicKey, s.AddressVersion)
	if err != nil {
		return frame{}, "", apperr.Wrap(apperr.Validation, err, "derive signer address")
	}
	if derived != f.address {
		return frame{}, "", apperr.New(apperr.Authorization, "signer address does not match payload address")
	}
	return f, derived, nil
}

// verifyManager is verify plus the extra manager-only check: the
// derived/payload address must equal the configured manager address.
func (s *Server) verifyManager(r *http.Request, wantAction string) (frame, error) {
	f, addr, err := s.verify(r, wantAction)
	if err != nil {
		return frame{}, err
	}
	if addr != s.ManagerAddress {
		return frame{}, apperr.New(apperr.Authorization, "action restricted to the manager address")
	}
	return f, nil
}
