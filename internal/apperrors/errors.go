// Package apperrors defines the typed failures surfaced by the session engine.
package apperrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown                      Code = "UNKNOWN"
	CodeNotOwner                     Code = "NOT_OWNER"
	CodeInvalidTransition            Code = "INVALID_TRANSITION"
	CodeNoMoreBlocks                 Code = "NO_MORE_BLOCKS"
	CodeSessionNotAcceptingResponses Code = "SESSION_NOT_ACCEPTING_RESPONSES"
	CodeValidation                   Code = "VALIDATION_ERROR"
	CodeNotFound                     Code = "NOT_FOUND"
	CodeUnauthorized                 Code = "UNAUTHORIZED"
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error carrying the same code, so callers can compare
// against the sentinels below regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotOwner                     = &Error{Code: CodeNotOwner, Message: "actor is not the session owner"}
	ErrInvalidTransition            = &Error{Code: CodeInvalidTransition, Message: "invalid session transition"}
	ErrNoMoreBlocks                 = &Error{Code: CodeNoMoreBlocks, Message: "no more blocks to activate"}
	ErrSessionNotAcceptingResponses = &Error{Code: CodeSessionNotAcceptingResponses, Message: "session is not accepting responses"}
	ErrValidation                   = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrNotFound                     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrUnauthorized                 = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
)

func New(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...any) error {
	return New(CodeInvalidTransition, format, args...)
}

func Validation(format string, args ...any) error {
	return New(CodeValidation, format, args...)
}

func NotFound(format string, args ...any) error {
	return New(CodeNotFound, format, args...)
}

func NotAccepting(format string, args ...any) error {
	return New(CodeSessionNotAcceptingResponses, format, args...)
}

// CodeOf extracts the code of the first *Error in the chain.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}
