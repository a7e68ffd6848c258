package server

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindConflict           Kind = "conflict"
	KindPreconditionFailed Kind = "precondition_failed"
	KindDrawImpossible     Kind = "draw_impossible"
	KindStorage            Kind = "storage"
)

// Error is returned by every Coordinator operation. Message is safe to show
// to users; Err carries the underlying cause and is never shown.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same call may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindDrawImpossible
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func ErrValidation(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func ErrNotFound(what string) *Error {
	return newError(KindNotFound, "%s not found", what)
}

func ErrForbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func ErrConflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func ErrPreconditionFailed(format string, args ...any) *Error {
	return newError(KindPreconditionFailed, format, args...)
}

func ErrDrawImpossible(err error) *Error {
	return &Error{
		Kind:    KindDrawImpossible,
		Message: "could not compute a valid draw, try again",
		Err:     err,
	}
}

func ErrStorage(err error) *Error {
	return &Error{
		Kind:    KindStorage,
		Message: "storage failure",
		Err:     err,
	}
}

// KindOf returns the kind of err, or KindStorage when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}
