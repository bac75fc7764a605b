// Package apperr defines the error taxonomy surfaced by the services.
//
// Services return *Error values; handlers map them to HTTP responses:
//
//	if errors.Is(err, apperr.ErrForbidden) { ... }
//
//	var e *apperr.Error
//	if errors.As(err, &e) {
//	    status := e.HTTPStatus()
//	}
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeBadRequest     Code = "BAD_REQUEST"
	CodeValidation     Code = "VALIDATION"
	CodeConflict       Code = "CONFLICT"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeForbidden      Code = "FORBIDDEN"
	CodeNotFound       Code = "NOT_FOUND"
	CodeStorageFailure Code = "STORAGE_FAILURE"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// HTTPStatus returns the HTTP status code for an error code.
// Conflicts surface as 400 so duplicate usernames look like any other rejected registration.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeBadRequest, CodeValidation, CodeConflict:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a coded error with a client-safe message.
type Error struct {
	Code    Code
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// Sentinel errors for use with errors.Is.
var (
	ErrBadRequest     = &Error{Code: CodeBadRequest, Message: "bad request"}
	ErrValidation     = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrConflict       = &Error{Code: CodeConflict, Message: "conflict"}
	ErrUnauthorized   = &Error{Code: CodeUnauthorized, Message: "could not validate credentials"}
	ErrForbidden      = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrNotFound       = &Error{Code: CodeNotFound, Message: "not found"}
	ErrStorageFailure = &Error{Code: CodeStorageFailure, Message: "storage failure"}
	ErrRateLimited    = &Error{Code: CodeRateLimited, Message: "too many requests"}
	ErrInternal       = &Error{Code: CodeInternal, Message: "internal server error"}
)

func BadRequest(msg string) *Error   { return &Error{Code: CodeBadRequest, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Code: CodeConflict, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Code: CodeUnauthorized, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Code: CodeForbidden, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Code: CodeNotFound, Message: msg} }

// Validation creates a validation error carrying per-field details.
func Validation(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Wrap attaches a code and client-safe message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// StorageFailure wraps a failed byte write or read.
func StorageFailure(err error) *Error {
	return Wrap(err, CodeStorageFailure, "storage failure")
}
