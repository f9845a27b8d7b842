// Package apperr holds the error taxonomy shared by the booking core and its transports.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindForbidden     Kind = "forbidden"
	KindConfiguration Kind = "configuration"
)

// Reason narrows a Kind down to what the caller has to do about it.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonOutsideWorkingHours Reason = "outside_working_hours"
	ReasonBlocked             Reason = "blocked"
	ReasonAlreadyBooked       Reason = "already_booked"
	ReasonInThePast           Reason = "in_the_past"
	ReasonInvalidTransition   Reason = "invalid_transition"
	ReasonInactive            Reason = "inactive"
	ReasonNotOffered          Reason = "not_offered"
	ReasonInsufficientCredit  Reason = "insufficient_credit"
	ReasonInvalidInput        Reason = "invalid_input"
)

type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Reason != ReasonNone {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and, when the target carries one, on Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrForbidden     = &Error{Kind: KindForbidden}
	ErrConfiguration = &Error{Kind: KindConfiguration}

	ErrOutsideWorkingHours = &Error{Kind: KindConflict, Reason: ReasonOutsideWorkingHours}
	ErrBlocked             = &Error{Kind: KindConflict, Reason: ReasonBlocked}
	ErrAlreadyBooked       = &Error{Kind: KindConflict, Reason: ReasonAlreadyBooked}
	ErrInThePast           = &Error{Kind: KindValidation, Reason: ReasonInThePast}
	ErrInvalidTransition   = &Error{Kind: KindValidation, Reason: ReasonInvalidTransition}
)

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Validation(reason Reason, format string, args ...any) error {
	return &Error{Kind: KindValidation, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func Conflict(reason Reason, format string, args ...any) error {
	return &Error{Kind: KindConflict, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Configuration(err error, format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}
