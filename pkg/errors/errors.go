package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	// ErrCodeConnection covers a relay that is unreachable or a signaling
	// connection that dropped. Surfaced to the user; no automatic reconnect
	// beyond what the transport itself provides.
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"

	// ErrCodeMediaAcquisition covers a denied or unavailable local media
	// source. Fatal to the sender role for that session; not retried.
	ErrCodeMediaAcquisition ErrorCode = "MEDIA_ACQUISITION_ERROR"

	// ErrCodeNegotiationFailure is a transport that reported failed state
	// after the single restart attempt. The session is discarded.
	ErrCodeNegotiationFailure ErrorCode = "NEGOTIATION_FAILURE"

	// ErrCodeProtocolMessage is a malformed or out-of-context signaling
	// message. Dropped and logged at the relay, never propagated to other
	// participants.
	ErrCodeProtocolMessage ErrorCode = "PROTOCOL_MESSAGE_ERROR"

	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// Common error constructors

func NewConnectionError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeConnection, message, http.StatusBadGateway)
}

func NewMediaAcquisitionError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeMediaAcquisition, message, http.StatusInternalServerError)
}

func NewNegotiationFailure(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeNegotiationFailure, message, http.StatusInternalServerError)
}

func NewProtocolMessageError(message string) *AppError {
	return NewAppError(ErrCodeProtocolMessage, message, http.StatusBadRequest)
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	type unwrapper interface {
		Unwrap() error
	}

	if u, ok := err.(unwrapper); ok {
		return GetAppError(u.Unwrap())
	}

	return nil
}
