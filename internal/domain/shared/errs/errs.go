// Package errs classifies failures of the negotiation engine so that transports can map them to
// status codes without knowing which domain package produced them.
package errs

import "errors"

// Kind is the failure class of an error.
type Kind string

const (
	Validation        Kind = "validation"
	Blocked           Kind = "blocked"
	IllegalTransition Kind = "illegal_transition"
	StaleState        Kind = "stale_state"
	Transport         Kind = "transport"
	NotFound          Kind = "not_found"
	Forbidden         Kind = "forbidden"
)

// Error is a classified error. Domain packages declare their sentinels as *Error values.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// New returns a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first classified error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the caller may retry the failed operation after reloading state.
func Retryable(err error) bool {
	switch KindOf(err) {
	case StaleState, Transport:
		return true
	default:
		return false
	}
}
