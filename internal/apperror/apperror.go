package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindAuth           Kind = "AUTH"
	KindConflict       Kind = "CONFLICT"
	KindNotFound       Kind = "NOT_FOUND"
	KindRateLimit      Kind = "RATE_LIMIT"
	KindTransientStore Kind = "TRANSIENT_STORE"
	KindUnexpected     Kind = "UNEXPECTED"
)

// Error is the application error carried from services to handlers.
// Code is the client-facing machine code (e.g. "ALREADY_ATTEMPTED").
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Status overrides the default status for Kind when non-zero.
	Status int
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Code so that errors.Is(err, ErrAlreadyAttempted) works for
// copies created with WithCause or WithMessage.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Kind == t.Kind
}

// HTTPStatus returns the response status for the error.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindTransientStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithMessage returns a copy of e with a different client-facing message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Constructors

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func Auth(code, message string) *Error {
	return New(KindAuth, code, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func RateLimit(code, message string) *Error {
	return New(KindRateLimit, code, message)
}

func Unexpected(cause error) *Error {
	return &Error{Kind: KindUnexpected, Code: "INTERNAL_ERROR", Message: "internal server error", Cause: cause}
}

// As extracts an *Error from err. Errors that are not application errors are
// reported as unexpected.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Unexpected(err)
}

// KindOf returns the Kind of err, or KindUnexpected.
func KindOf(err error) Kind {
	return As(err).Kind
}
