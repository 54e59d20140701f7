package booking

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow failure. Callers switch on it (or use errors.Is
// with the sentinels below); Message is for humans.
type Kind string

const (
	KindInvalidInterval        Kind = "INVALID_INTERVAL"
	KindValidation             Kind = "VALIDATION_FAILED"
	KindResourceNotFound       Kind = "RESOURCE_NOT_FOUND"
	KindBookingNotFound        Kind = "BOOKING_NOT_FOUND"
	KindResourceUnavailable    Kind = "RESOURCE_UNAVAILABLE"
	KindInvalidStateTransition Kind = "INVALID_STATE_TRANSITION"
	KindNotOwner               Kind = "NOT_OWNER"
	KindStorageUnavailable     Kind = "STORAGE_UNAVAILABLE"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotOwner)
// works regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

var (
	ErrInvalidInterval        = &Error{Kind: KindInvalidInterval}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrResourceNotFound       = &Error{Kind: KindResourceNotFound}
	ErrBookingNotFound        = &Error{Kind: KindBookingNotFound}
	ErrResourceUnavailable    = &Error{Kind: KindResourceUnavailable}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrNotOwner               = &Error{Kind: KindNotOwner}
	ErrStorageUnavailable     = &Error{Kind: KindStorageUnavailable}
)

// KindOf extracts the Kind of err, or "" when err is not a workflow error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
