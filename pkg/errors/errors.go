// Package errors defines custom error types and error handling utilities for the covenantwatch service.
// Every error carries a stable code and the HTTP status it maps to at the API boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

const (
	ErrCodeInvalidRequest     ErrorCode = "invalid_request"
	ErrCodeNotFound           ErrorCode = "not_found"
	ErrCodeConflict           ErrorCode = "conflict"
	ErrCodeServerError        ErrorCode = "server_error"
	ErrCodeServiceUnavailable ErrorCode = "service_unavailable"
	ErrCodeRateLimited        ErrorCode = "rate_limited"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// AppError represents a structured error with additional metadata
type AppError interface {
	error

	// Code returns the error code
	Code() ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) AppError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) AppError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() ErrorCode {
	return e.code
}

func (e *baseError) HTTPStatus() int {
	return e.httpStatus
}

func (e *baseError) Description() string {
	return e.description
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) WithCause(cause error) AppError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// Is matches two AppErrors by code so errors.Is works against the predefined kinds.
func (e *baseError) Is(target error) bool {
	var t *baseError
	if !errors.As(target, &t) {
		return false
	}
	return e.code == t.code
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new AppError with the specified parameters
func NewError(code ErrorCode, httpStatus int, description string, message string) AppError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) AppError {
	return NewError(
		ErrCodeInvalidRequest,
		http.StatusBadRequest,
		"The request is missing a required parameter or includes an invalid parameter value.",
		message,
	)
}

// ErrNotFound creates a generic not_found error
func ErrNotFound(message string) AppError {
	return NewError(
		ErrCodeNotFound,
		http.StatusNotFound,
		"The requested resource was not found.",
		message,
	)
}

// ErrConflict creates a conflict error
func ErrConflict(message string) AppError {
	return NewError(
		ErrCodeConflict,
		http.StatusConflict,
		"The request conflicts with the current state of the resource.",
		message,
	)
}

// ErrServerError creates a server_error error
func ErrServerError(message string) AppError {
	return NewError(
		ErrCodeServerError,
		http.StatusInternalServerError,
		"The server encountered an unexpected condition that prevented it from fulfilling the request.",
		message,
	)
}

// ErrServiceUnavailable creates a service_unavailable error
func ErrServiceUnavailable(message string) AppError {
	return NewError(
		ErrCodeServiceUnavailable,
		http.StatusServiceUnavailable,
		"A required dependency is temporarily unavailable.",
		message,
	)
}

// ErrRateLimited creates a rate_limited error for the throttled caller key
func ErrRateLimited(key string) AppError {
	return NewError(
		ErrCodeRateLimited,
		http.StatusTooManyRequests,
		"Too many requests. Retry after the interval in the Retry-After header.",
		"rate limit exceeded",
	).WithMetadata("key", key)
}

// ================================================================================
// Domain-Specific Error Constructors
// ================================================================================

// ErrLoanNotFound creates a loan not found error
func ErrLoanNotFound(loanID string) AppError {
	return ErrNotFound(fmt.Sprintf("Loan not found: %s", loanID)).
		WithMetadata("loan_id", loanID)
}

// ErrCovenantNotFound creates a covenant not found error
func ErrCovenantNotFound(loanID, covenantID string) AppError {
	return ErrNotFound(fmt.Sprintf("Covenant %s not found on loan %s", covenantID, loanID)).
		WithMetadata("loan_id", loanID).
		WithMetadata("covenant_id", covenantID)
}

// ErrInvalidHorizon creates an error for malformed prediction horizons
func ErrInvalidHorizon(raw string) AppError {
	return ErrInvalidRequest("Invalid horizons format. Use comma-separated positive integers.").
		WithMetadata("horizons", raw)
}

// ErrInvalidModel creates an error for model parameters that do not match the feature layout
func ErrInvalidModel(reason string) AppError {
	return ErrServerError(fmt.Sprintf("Invalid model parameters: %s", reason)).
		WithMetadata("reason", reason)
}

// ErrLedgerUnavailable creates an error for a failed breach-ledger call
func ErrLedgerUnavailable(reason string) AppError {
	return ErrServiceUnavailable(fmt.Sprintf("Breach ledger unavailable: %s", reason)).
		WithMetadata("reason", reason)
}

// ErrDatabaseOperation wraps a storage failure
func ErrDatabaseOperation(op string, cause error) AppError {
	return ErrServerError(fmt.Sprintf("Database operation failed: %s", op)).
		WithMetadata("operation", op).
		WithCause(cause)
}

// ErrCacheOperation wraps a cache failure
func ErrCacheOperation(op string, cause error) AppError {
	return ErrServerError(fmt.Sprintf("Cache operation failed: %s", op)).
		WithMetadata("operation", op).
		WithCause(cause)
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// AsAppError attempts to extract an AppError from an error chain
func AsAppError(err error) (AppError, bool) {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a not_found AppError
func IsNotFound(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code() == ErrCodeNotFound
}

// WrapError wraps a generic error into an AppError
func WrapError(err error, code ErrorCode, message string) AppError {
	var httpStatus int

	switch code {
	case ErrCodeInvalidRequest:
		httpStatus = http.StatusBadRequest
	case ErrCodeNotFound:
		httpStatus = http.StatusNotFound
	case ErrCodeConflict:
		httpStatus = http.StatusConflict
	case ErrCodeServiceUnavailable:
		httpStatus = http.StatusServiceUnavailable
	case ErrCodeRateLimited:
		httpStatus = http.StatusTooManyRequests
	default:
		httpStatus = http.StatusInternalServerError
	}

	return NewError(code, httpStatus, err.Error(), message).WithCause(err)
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Message          string                 `json:"message,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts any error to an ErrorResponse and its HTTP status
func ToErrorResponse(err error) (int, *ErrorResponse) {
	if appErr, ok := AsAppError(err); ok {
		msg := appErr.Error()
		if b, ok := appErr.(*baseError); ok && b.message != "" {
			msg = b.message
		}
		return appErr.HTTPStatus(), &ErrorResponse{
			Error:            string(appErr.Code()),
			ErrorDescription: appErr.Description(),
			Message:          msg,
			Metadata:         appErr.Metadata(),
		}
	}

	return http.StatusInternalServerError, &ErrorResponse{
		Error:            string(ErrCodeServerError),
		ErrorDescription: "An unexpected error occurred",
	}
}
