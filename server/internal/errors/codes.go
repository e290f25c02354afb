package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/wiesioai/wiesio/store"
)

// ErrorCode represents a specific error type returned by the directory API.
type ErrorCode string

const (
	// ErrCodeInvalidIdentifier indicates a conversation reference the sanitizer rejected.
	ErrCodeInvalidIdentifier ErrorCode = "INVALID_IDENTIFIER"
	// ErrCodeNotFound indicates the conversation or its table does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodePersistenceFailure indicates a write was rolled back.
	ErrCodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeInternal indicates any other failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Status returns the HTTP status for the code.
func (c ErrorCode) Status() int {
	switch c {
	case ErrCodeInvalidIdentifier, ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// APIError represents a structured error for API operations.
type APIError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// Body is the JSON payload written for an error response.
type Body struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Body returns the client facing payload. The cause stays in the logs.
func (e *APIError) Body() Body {
	return Body{Code: e.Code, Message: e.Message}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *APIError {
	return &APIError{Code: ErrCodeInvalidArgument, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *APIError {
	return &APIError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *APIError {
	return &APIError{Code: code, Message: msg, Cause: cause}
}

// FromError maps store error kinds onto API codes.
func FromError(err error) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case stderrors.Is(err, store.ErrInvalidIdentifier):
		return Wrap(err, ErrCodeInvalidIdentifier, "invalid conversation identifier")
	case stderrors.Is(err, store.ErrNotFound):
		return Wrap(err, ErrCodeNotFound, "conversation not found")
	case stderrors.Is(err, store.ErrPersistenceFailure):
		return Wrap(err, ErrCodePersistenceFailure, "failed to persist conversation")
	default:
		return Wrap(err, ErrCodeInternal, "internal error")
	}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
