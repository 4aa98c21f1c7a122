package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the application.
type ErrorCode string

// Model error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrModelOverloaded    ErrorCode = "MODEL_OVERLOADED"
	ErrContextTooLong     ErrorCode = "CONTEXT_TOO_LONG"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Agent error codes
const (
	ErrAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	ErrToolNotFound      ErrorCode = "TOOL_NOT_FOUND"
	ErrToolValidation    ErrorCode = "TOOL_VALIDATION"
	ErrMalformedAnswer   ErrorCode = "MALFORMED_ANSWER"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrNotFound          ErrorCode = "NOT_FOUND"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewRateLimitError 限流错误（可重试）
func NewRateLimitError(message string) *Error {
	return NewError(ErrRateLimited, message).
		WithHTTPStatus(http.StatusTooManyRequests).
		WithRetryable(true)
}

// NewTimeoutError 超时错误（可重试）
func NewTimeoutError(message string) *Error {
	return NewError(ErrTimeout, message).
		WithHTTPStatus(http.StatusGatewayTimeout).
		WithRetryable(true)
}

// NewUpstreamError 上游服务错误（可重试）
func NewUpstreamError(message string) *Error {
	return NewError(ErrUpstreamError, message).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true)
}

// NewInvalidRequestError 请求参数错误
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).
		WithHTTPStatus(http.StatusBadRequest)
}

// NewNotFoundError 资源不存在
func NewNotFoundError(message string) *Error {
	return NewError(ErrNotFound, message).
		WithHTTPStatus(http.StatusNotFound)
}

// ClassifyHTTPStatus 根据上游 HTTP 状态码构造错误
func ClassifyHTTPStatus(status int, message string) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(ErrAuthentication, message).WithHTTPStatus(status)
	case status == http.StatusTooManyRequests:
		return NewRateLimitError(message)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewTimeoutError(message)
	case status == 529 || status == http.StatusServiceUnavailable:
		return NewError(ErrModelOverloaded, message).WithHTTPStatus(status).WithRetryable(true)
	case status >= 500:
		return NewUpstreamError(message).WithHTTPStatus(status)
	case status >= 400:
		return NewInvalidRequestError(message).WithHTTPStatus(status)
	default:
		return NewError(ErrInternalError, message).WithHTTPStatus(http.StatusInternalServerError)
	}
}
