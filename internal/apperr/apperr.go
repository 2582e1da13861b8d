// Package apperr defines the typed error taxonomy shared by the pipelines
// and the HTTP layer. Pipeline stages return these instead of panicking or
// relying on a catch-all, so the HTTP mapping is checked at compile time.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUnauthenticated
	KindQuotaExceeded
	KindNotFound
	KindGatewayTransient
	KindGatewaySchemaInvalid
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindNotFound:
		return "not_found"
	case KindGatewayTransient:
		return "gateway_transient"
	case KindGatewaySchemaInvalid:
		return "gateway_schema_invalid"
	case KindPersistence:
		return "persistence_failure"
	default:
		return "internal"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the user-facing message for err. Untyped and 500-class
// errors get a generic message so internals never leak to clients.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindInvalidInput, KindUnauthenticated, KindQuotaExceeded, KindNotFound:
			return e.Msg
		case KindGatewayTransient, KindGatewaySchemaInvalid:
			return "processing failed, please try again"
		case KindPersistence:
			return "failed to save result"
		}
	}
	return "internal error"
}

// HTTPStatus maps err to a response status code. Quota errors use 429 so
// clients can distinguish an upgrade prompt from a generic failure.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindGatewayTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
