package core

import (
	"errors"
	"fmt"
)

// ErrorCode classifies service failures for the HTTP layer.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeInvalidParticipants ErrorCode = "INVALID_PARTICIPANTS"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeForbidden           ErrorCode = "FORBIDDEN"
	CodeConflict            ErrorCode = "CONFLICT"
	CodeUnauthorized        ErrorCode = "UNAUTHORIZED"
)

// Error is a classified service error. Two Errors match under errors.Is
// when their codes are equal, so the sentinels below can be used as targets.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation          = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrInvalidParticipants = &Error{Code: CodeInvalidParticipants, Message: "invalid participants"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrForbidden           = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "conflict"}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
)

func NewValidationError(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

func NewInvalidParticipantsError(message string) *Error {
	return &Error{Code: CodeInvalidParticipants, Message: message}
}

func NewNotFoundError(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func NewForbiddenError(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

func NewConflictError(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

func NewUnauthorizedError(message string) *Error {
	return &Error{Code: CodeUnauthorized, Message: message}
}
