// Package errs defines the typed error taxonomy shared by the binding,
// sync and content services. Callers match on Code via CodeOf or
// errors.As rather than string comparison.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code classifies an error for callers and the HTTP boundary
type Code string

const (
	CodeInvalidRequest    Code = "InvalidRequest"
	CodeInvalidState      Code = "InvalidState"
	CodeConflict          Code = "Conflict"
	CodeUnauthenticated   Code = "Unauthenticated"
	CodeNotFound          Code = "NotFound"
	CodeUpstream          Code = "UpstreamError"
	CodeTooSoon           Code = "TooSoon"
	CodeAlreadyInProgress Code = "AlreadyInProgress"
)

// Error is a coded error with an optional wrapped cause
type Error struct {
	Code    Code
	Message string
	// Remaining is only meaningful for CodeTooSoon
	Remaining time.Duration
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// TooSoon creates a cooldown error carrying the remaining wait
func TooSoon(remaining time.Duration) *Error {
	return &Error{
		Code:      CodeTooSoon,
		Message:   fmt.Sprintf("sync attempted too soon, retry in %ds", int(remaining.Seconds())+1),
		Remaining: remaining,
	}
}

// CodeOf extracts the Code from an error chain, or "" if untyped
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps a code to the status the API layer responds with
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidRequest, CodeInvalidState:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyInProgress:
		return http.StatusConflict
	case CodeTooSoon:
		return http.StatusTooManyRequests
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
