package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/logger"
)

// envelope is the {success, message} response shape spec.md §7 names for
// every mutating endpoint.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// writeNoContent answers spec.md §7's "lookup returned nothing" case.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps an apperr.Kind to the HTTP status spec.md §7's error
// table names.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Authorization:
		return http.StatusForbidden
	case apperr.StateTransitionDisallowed:
		return http.StatusConflict
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.ExternalRetryable:
		return http.StatusBadGateway
	case apperr.ExternalTerminal:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers a request with the status and message its taxonomy
// Kind prescribes. Internal errors never leak their underlying cause to
// the client; everything else's message is the error text itself.
func writeError(ctx http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if kind == apperr.Internal || kind == "" {
		logger.FromContext(r.Context()).Error().Err(err).Msg("httpapi.internal_error")
		msg = "internal error"
	}
	writeJSON(ctx, status, envelope{Success: false, Message: msg})
}
