package apperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindNotFound          Kind = "NOT_FOUND"
	KindDuplicateTracking Kind = "DUPLICATE_TRACKING"
	KindDuplicateEvent    Kind = "DUPLICATE_EVENT"
	KindInvalidState      Kind = "INVALID_STATE"
	KindGeocode           Kind = "GEOCODE_ERROR"
	KindStorage           Kind = "STORAGE_ERROR"
)

// Sentinels for errors.Is checks. Matching is by Kind only.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrDuplicateTracking = &Error{Kind: KindDuplicateTracking}
	ErrDuplicateEvent    = &Error{Kind: KindDuplicateEvent}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrGeocode           = &Error{Kind: KindGeocode}
	ErrStorage           = &Error{Kind: KindStorage}
)

type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
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

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func ValidationFields(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func DuplicateTracking(tracking string) *Error {
	return &Error{Kind: KindDuplicateTracking, Message: fmt.Sprintf("tracking number %q already exists", tracking)}
}

// DuplicateEvent: событие с этим source ref уже применено к отправлению.
func DuplicateEvent(tracking, ref string) *Error {
	return &Error{Kind: KindDuplicateEvent, Message: fmt.Sprintf("event %q already applied to %q", ref, tracking)}
}

func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Geocode(address string, err error) *Error {
	return &Error{Kind: KindGeocode, Message: fmt.Sprintf("cannot geocode %q", address), Err: err}
}

// Storage classifies a persistence failure. Already classified errors pass through.
func Storage(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStorage, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" if there is none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsRetryable is true for storage failures and unclassified errors: the same
// request may succeed later. Classified business errors will not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	k := KindOf(err)
	return k == "" || k == KindStorage
}
