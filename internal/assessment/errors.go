package assessment

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable class of a failure.
type Kind string

const (
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindBadRequest    Kind = "bad_request"
	KindInvalidWindow Kind = "invalid_window"
	KindExpired       Kind = "expired"
	KindNotInProgress Kind = "not_in_progress"
	KindConflict      Kind = "conflict"
	KindUpstream      Kind = "upstream"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare sentinel of the same kind. ErrBadRequest also matches the
// refined request kinds (invalid_window, expired, not_in_progress).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Msg != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind || t.Kind == e.Kind.Class()
}

// Class folds the refined kinds into the status class they are reported as.
func (k Kind) Class() Kind {
	switch k {
	case KindInvalidWindow, KindExpired, KindNotInProgress:
		return KindBadRequest
	}
	return k
}

func newErr(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// upstream wraps a storage or delegate failure; its message is passed through as-is.
func upstream(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindUpstream, Err: err}
}

// Sentinels for errors.Is.
var (
	ErrUnauthorized  = &Error{Kind: KindUnauthorized}
	ErrForbidden     = &Error{Kind: KindForbidden}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrBadRequest    = &Error{Kind: KindBadRequest}
	ErrInvalidWindow = &Error{Kind: KindInvalidWindow}
	ErrExpired       = &Error{Kind: KindExpired}
	ErrNotInProgress = &Error{Kind: KindNotInProgress}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrUpstream      = &Error{Kind: KindUpstream}
)

// KindOf classifies err; unknown errors are upstream failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// Store-level sentinels; stores wrap these so the services can classify them.
var (
	errRowNotFound        = errors.New("row not found")
	errActiveAttemptTaken = errors.New("active attempt already exists")
	errStateChanged       = errors.New("attempt state changed")
)
