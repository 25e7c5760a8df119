package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/b2pix/engine/internal/apperr"
)

func TestStatusFor(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.Validation:                http.StatusBadRequest,
		apperr.Authorization:              http.StatusForbidden,
		apperr.StateTransitionDisallowed:  http.StatusConflict,
		apperr.NotFound:                   http.StatusNotFound,
		apperr.ExternalRetryable:          http.StatusBadGateway,
		apperr.ExternalTerminal:           http.StatusUnprocessableEntity,
		apperr.Internal:                   http.StatusInternalServerError,
		apperr.Kind(""):                   http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), "kind=%s", kind)
	}
}
