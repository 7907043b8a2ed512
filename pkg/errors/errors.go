// Package errors defines the typed error taxonomy for toolhub.
//
// Every externally visible failure carries a stable type code and a human
// message. Callers check codes with the Is* helpers or errors.As; the
// underlying cause is preserved through Unwrap.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrServerUnavailable is returned when a downstream server is not connected
	ErrServerUnavailable = "server_unavailable"

	// ErrServerNotFound is returned when a server id is unknown
	ErrServerNotFound = "server_not_found"

	// ErrGroupNotFound is returned when a group id is unknown
	ErrGroupNotFound = "group_not_found"

	// ErrToolNotFound is returned when a tool is not visible in the requested scope
	ErrToolNotFound = "tool_not_found"

	// ErrToolServerMismatch is returned when a tool resolves to a different server than requested
	ErrToolServerMismatch = "tool_server_mismatch"

	// ErrInvalidParams is returned when tool arguments fail validation
	ErrInvalidParams = "invalid_params"

	// ErrAPIAuthFailed is returned when an upstream HTTP API rejects our credentials
	ErrAPIAuthFailed = "api_auth_failed"

	// ErrAPIForbidden is returned when an upstream HTTP API denies access
	ErrAPIForbidden = "api_forbidden"

	// ErrAPIRateLimited is returned when an upstream HTTP API rate-limits us
	ErrAPIRateLimited = "api_rate_limited"

	// ErrAPIServerError is returned when an upstream HTTP API fails with a 5xx
	ErrAPIServerError = "api_server_error"

	// ErrResponseProcessing is returned when a response cannot be normalized or transformed
	ErrResponseProcessing = "response_processing_failed"

	// ErrConfigValidation is returned when configuration fails validation
	ErrConfigValidation = "config_validation_error"

	// ErrToolExecution is returned when a downstream server fails a tool call
	ErrToolExecution = "tool_execution_error"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewServerUnavailableError creates a new server unavailable error
func NewServerUnavailableError(message string, cause error) *Error {
	return NewError(ErrServerUnavailable, message, cause)
}

// NewServerNotFoundError creates a new server not found error
func NewServerNotFoundError(message string, cause error) *Error {
	return NewError(ErrServerNotFound, message, cause)
}

// NewGroupNotFoundError creates a new group not found error
func NewGroupNotFoundError(message string, cause error) *Error {
	return NewError(ErrGroupNotFound, message, cause)
}

// NewToolNotFoundError creates a new tool not found error
func NewToolNotFoundError(message string, cause error) *Error {
	return NewError(ErrToolNotFound, message, cause)
}

// NewToolServerMismatchError creates a new tool server mismatch error
func NewToolServerMismatchError(message string, cause error) *Error {
	return NewError(ErrToolServerMismatch, message, cause)
}

// NewInvalidParamsError creates a new invalid params error
func NewInvalidParamsError(message string, cause error) *Error {
	return NewError(ErrInvalidParams, message, cause)
}

// NewAPIAuthFailedError creates a new API authentication failed error
func NewAPIAuthFailedError(message string, cause error) *Error {
	return NewError(ErrAPIAuthFailed, message, cause)
}

// NewAPIForbiddenError creates a new API forbidden error
func NewAPIForbiddenError(message string, cause error) *Error {
	return NewError(ErrAPIForbidden, message, cause)
}

// NewAPIRateLimitedError creates a new API rate limited error
func NewAPIRateLimitedError(message string, cause error) *Error {
	return NewError(ErrAPIRateLimited, message, cause)
}

// NewAPIServerError creates a new API server error
func NewAPIServerError(message string, cause error) *Error {
	return NewError(ErrAPIServerError, message, cause)
}

// NewResponseProcessingError creates a new response processing error
func NewResponseProcessingError(message string, cause error) *Error {
	return NewError(ErrResponseProcessing, message, cause)
}

// NewConfigValidationError creates a new config validation error
func NewConfigValidationError(message string, cause error) *Error {
	return NewError(ErrConfigValidation, message, cause)
}

// NewToolExecutionError creates a new tool execution error
func NewToolExecutionError(message string, cause error) *Error {
	return NewError(ErrToolExecution, message, cause)
}

// isType checks whether err (or anything it wraps) is an *Error of the given type.
func isType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsServerUnavailable checks if the error is a server unavailable error
func IsServerUnavailable(err error) bool {
	return isType(err, ErrServerUnavailable)
}

// IsServerNotFound checks if the error is a server not found error
func IsServerNotFound(err error) bool {
	return isType(err, ErrServerNotFound)
}

// IsGroupNotFound checks if the error is a group not found error
func IsGroupNotFound(err error) bool {
	return isType(err, ErrGroupNotFound)
}

// IsToolNotFound checks if the error is a tool not found error
func IsToolNotFound(err error) bool {
	return isType(err, ErrToolNotFound)
}

// IsToolServerMismatch checks if the error is a tool server mismatch error
func IsToolServerMismatch(err error) bool {
	return isType(err, ErrToolServerMismatch)
}

// IsInvalidParams checks if the error is an invalid params error
func IsInvalidParams(err error) bool {
	return isType(err, ErrInvalidParams)
}

// IsAPIAuthFailed checks if the error is an API authentication failed error
func IsAPIAuthFailed(err error) bool {
	return isType(err, ErrAPIAuthFailed)
}

// IsAPIForbidden checks if the error is an API forbidden error
func IsAPIForbidden(err error) bool {
	return isType(err, ErrAPIForbidden)
}

// IsAPIRateLimited checks if the error is an API rate limited error
func IsAPIRateLimited(err error) bool {
	return isType(err, ErrAPIRateLimited)
}

// IsAPIServerError checks if the error is an API server error
func IsAPIServerError(err error) bool {
	return isType(err, ErrAPIServerError)
}

// IsResponseProcessing checks if the error is a response processing error
func IsResponseProcessing(err error) bool {
	return isType(err, ErrResponseProcessing)
}

// IsConfigValidation checks if the error is a config validation error
func IsConfigValidation(err error) bool {
	return isType(err, ErrConfigValidation)
}

// IsToolExecution checks if the error is a tool execution error
func IsToolExecution(err error) bool {
	return isType(err, ErrToolExecution)
}

// TypeOf returns the type code of err if it is (or wraps) an *Error,
// or an empty string otherwise.
func TypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}
