// Package errors provides the error taxonomy shared by the traffic engine
// and its HTTP surface. Every fault the engine can surface to a caller is
// an *AppError carrying an HTTP status and a plain-text message.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the kind of error, one of the table in the error
// handling design.
type ErrorType string

const (
	ErrorTypeBadRequest        ErrorType = "bad_request"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeNoServer          ErrorType = "no_server"
	ErrorTypePortsExhausted    ErrorType = "ports_exhausted"
	ErrorTypeProvisioningEmpty ErrorType = "provisioning_empty"
	ErrorTypeNotReady          ErrorType = "not_ready"
	ErrorTypeInternal          ErrorType = "internal_error"
)

// AppError represents an application error with additional context
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func newError(t ErrorType, code int, message string, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{Type: t, Message: message, Code: code, Details: detail}
}

// NewBadRequestError creates a new bad request error (body not JSON, or
// schema validation failed).
func NewBadRequestError(message string, details ...string) *AppError {
	return newError(ErrorTypeBadRequest, http.StatusBadRequest, message, details...)
}

// NewUnauthorizedError creates a new unauthorized error (bearer mismatch).
func NewUnauthorizedError(message string, details ...string) *AppError {
	return newError(ErrorTypeUnauthorized, http.StatusUnauthorized, message, details...)
}

// NewNoServerError creates the error for an empty tunnel-server candidate set.
func NewNoServerError(message string, details ...string) *AppError {
	return newError(ErrorTypeNoServer, http.StatusInternalServerError, message, details...)
}

// NewPortsExhaustedError creates the error for an allocator that could not
// satisfy the requested port count.
func NewPortsExhaustedError(message string, details ...string) *AppError {
	return newError(ErrorTypePortsExhausted, http.StatusInternalServerError, message, details...)
}

// NewProvisioningEmptyError creates the error for a post-create proxy list
// that came back empty.
func NewProvisioningEmptyError(message string, details ...string) *AppError {
	return newError(ErrorTypeProvisioningEmpty, http.StatusInternalServerError, message, details...)
}

// NewNotReadyError creates the error for an exhausted readiness poll.
func NewNotReadyError(message string, details ...string) *AppError {
	return newError(ErrorTypeNotReady, http.StatusServiceUnavailable, message, details...)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, details ...string) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, details...)
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsNotReady reports whether err is the readiness-poll-exhausted kind.
func IsNotReady(err error) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == ErrorTypeNotReady
}
