// Package apperr defines the error taxonomy shared by every layer of the
// engine, so that a handler boundary never has to guess whether an error
// is retryable, a 404, or a rejected state transition.
package apperr

import (
	"golang.org/x/xerrors"
)

// Kind classifies an error for propagation policy: HTTP status, dispatcher
// retry eligibility, and logging verbosity all key off it.
type Kind string

const (
	Validation                Kind = "validation"
	Authorization              Kind = "authorization"
	StateTransitionDisallowed Kind = "state_transition_disallowed"
	NotFound                  Kind = "not_found"
	ExternalRetryable         Kind = "external_retryable"
	ExternalTerminal          Kind = "external_terminal"
	Internal                  Kind = "internal"
)

// Error wraps an underlying cause with a taxonomy Kind.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// New builds a bare taxonomy error with no wrapped cause.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, msg: xerrors.Errorf(format, args...).Error()}
}

// Wrap attaches a Kind to an existing error, preserving it via Unwrap.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, msg: xerrors.Errorf(format, args...).Error(), err: err}
}

// KindOf returns the taxonomy Kind of err, or Internal if err was never
// classified — an unclassified error is always treated as a bug, never as
// something safe to retry or expose verbatim.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Retryable reports whether the dispatcher should reschedule a consumer
// that failed with err.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ExternalRetryable, Internal:
		return true
	default:
		return false
	}
}
