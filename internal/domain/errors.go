package domain

import (
	"errors"
	"net/http"
)

// Error codes for portal and upstream failures.
const (
	CodeNotFound      = 1
	CodeAlreadyExists = 2
	CodeValidation    = 3
	CodeInternal      = 4
	CodeUnauthorized  = 5
	CodeForbidden     = 6
	CodeUnavailable   = 7
	CodeUnrecognized  = 8
)

// AppError represents a classified failure with a code, a user-facing message,
// and an optional wrapped cause.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined errors. Match categories with the Is* helpers, which compare
// codes, rather than errors.Is, which compares pointers.
var (
	ErrNotFound      = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists = &AppError{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation    = &AppError{Code: CodeValidation, Message: "validation error"}
	ErrInternal      = &AppError{Code: CodeInternal, Message: "internal error"}
	ErrUnauthorized  = &AppError{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden     = &AppError{Code: CodeForbidden, Message: "forbidden"}
	ErrUnavailable   = &AppError{Code: CodeUnavailable, Message: "service unavailable"}
	ErrUnrecognized  = &AppError{Code: CodeUnrecognized, Message: "unrecognized response"}
)

// ErrCancelled reports that staff declined a confirmation or input dialog.
// It is an outcome, not a failure, and is never shown as an error.
var ErrCancelled = errors.New("operación cancelada")

// NewAppError creates a new AppError with the given code, message, and wrapped error.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsNotFound reports whether err is or wraps an AppError with CodeNotFound.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsAlreadyExists reports whether err is or wraps an AppError with CodeAlreadyExists.
func IsAlreadyExists(err error) bool {
	return hasCode(err, CodeAlreadyExists)
}

// IsValidation reports whether err is or wraps an AppError with CodeValidation.
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// IsInternal reports whether err is or wraps an AppError with CodeInternal.
func IsInternal(err error) bool {
	return hasCode(err, CodeInternal)
}

// IsUnavailable reports whether err is a transient network or server failure.
func IsUnavailable(err error) bool {
	return hasCode(err, CodeUnavailable) || hasCode(err, CodeUnrecognized)
}

// IsAuth reports whether err must be escalated to the session layer
// (401 or 403 from the complaints API, or a missing session).
func IsAuth(err error) bool {
	return hasCode(err, CodeUnauthorized) || hasCode(err, CodeForbidden)
}

// hasCode checks whether err is or wraps an *AppError with the given code.
func hasCode(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// UserMessage returns the message safe to show to staff. Non-AppError
// failures collapse to a generic text.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if errors.Is(err, ErrCancelled) {
		return ErrCancelled.Error()
	}
	return "Ocurrió un error inesperado."
}

// HTTPStatusCode maps an error to an HTTP status code.
// If the error is an *AppError, the code is mapped; otherwise http.StatusInternalServerError is returned.
func HTTPStatusCode(err error) int {
	if errors.Is(err, ErrCancelled) {
		return http.StatusConflict
	}
	var appErr *AppError
	if err != nil && errors.As(err, &appErr) {
		switch appErr.Code {
		case CodeNotFound:
			return http.StatusNotFound
		case CodeAlreadyExists:
			return http.StatusConflict
		case CodeValidation:
			return http.StatusBadRequest
		case CodeInternal:
			return http.StatusInternalServerError
		case CodeUnauthorized:
			return http.StatusUnauthorized
		case CodeForbidden:
			return http.StatusForbidden
		case CodeUnavailable, CodeUnrecognized:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}
