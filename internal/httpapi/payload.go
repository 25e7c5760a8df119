// Package httpapi is the inbound REST adapter of spec.md §6: chi routes
// over the core services, signed-payload verification, and the
// {success,message} response shape every mutating endpoint returns.
package httpapi

import (
	"strings"
	"time"

	"github.com/b2pix/engine/internal/apperr"
)

const domainTag = "b2pix.org"

// timestampSkew is how far a payload's trailing RFC-3339 timestamp may
// drift from now before the request is rejected, per spec.md §6.
const timestampSkew = 5 * time.Minute

// frame is a parsed, not-yet-authorized signed payload: label and domain
// already checked, fields are the action-specific lines between the
// fixed header (label, domain, address) and the trailing timestamp.
type frame struct {
	label     string
	address   string
	fields    []string
	timestamp time.Time
}

// parseFrame splits payload into its line-oriented frame and checks the
// domain tag and timestamp window. It does not check the action label
// against the caller's expectation — callers do that via frame.expect.
func parseFrame(payload string) (frame, error) {
	lines := strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n")
	if len(lines) < 4 {
		return frame{}, apperr.New(apperr.Validation, "payload has too few lines")
	}
	label := lines[0]
	domain := lines[1]
	address := lines[2]
	tsLine := lines[len(lines)-1]
	fields := lines[3 : len(lines)-1]

	if domain != domainTag {
		return frame{}, apperr.New(apperr.Validation, "payload domain %q does not match %q", domain, domainTag)
	}
	ts, err := time.Parse(time.RFC3339, tsLine)
	if err != nil {
		return frame{}, apperr.Wrap(apperr.Validation, err, "parse payload timestamp")
	}
	if d := time.Since(ts); d > timestampSkew || d < -timestampSkew {
		return frame{}, apperr.New(apperr.Validation, "payload timestamp %s outside the ±%s window", tsLine, timestampSkew)
	}
	return frame{label: label, address: address, fields: fields, timestamp: ts}, nil
}

// expect rejects a frame whose action label doesn't match want.
func (f frame) expect(want string) error {
	if f.label != want {
		return apperr.New(apperr.Validation, "payload action %q does not match expected %q", f.label, want)
	}
	return nil
}

// field returns fields[i], or an error if the payload didn't carry it.
func (f frame) field(i int) (string, error) {
	if i < 0 || i >= len(f.fields) {
		return "", apperr.New(apperr.Validation, "payload missing field at position %d", i)
	}
	return f.fields[i], nil
}

// fieldOr returns fields[i], or def if the payload didn't carry it — for
// the handful of action fields that are genuinely optional (e.g. the PIX
// confirmation code on "Marcar como Pago").
func (f frame) fieldOr(i int, def string) string {
	if i < 0 || i >= len(f.fields) {
		return def
	}
	return f.fields[i]
}
