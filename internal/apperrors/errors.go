// Package apperrors defines the coded errors surfaced by the service layer.
package apperrors

import (
	"errors"
	"fmt"
)

// Code is a machine-checkable error kind. Transports map codes to their
// own status values; the code set itself is transport-agnostic.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeInternal          Code = "INTERNAL"
)

// Error carries a code, a caller-safe message and an optional cause.
// The cause is for server-side logs only and never serialized.
type Error struct {
	code    Code
	message string
	cause   error
}

// New builds an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error. A nil cause behaves like New.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// Internal wraps an unexpected failure. The caller-visible message is
// deliberately opaque.
func Internal(cause error) *Error {
	return &Error{code: CodeInternal, message: "internal error", cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Unwrap exposes the cause to errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// Code returns the error kind. A nil receiver reads as internal.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

// Message returns the caller-safe message.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// As extracts an *Error from err, or nil if err carries none.
func As(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of err, defaulting to internal for plain errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}
