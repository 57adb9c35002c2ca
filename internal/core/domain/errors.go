package domain

import (
	"fmt"
	"net/http"
)

// ErrorCode represents categorized error types.
// These codes are stable and can be used for programmatic error handling.
type ErrorCode string

const (
	ErrCodeInvalidConfig  ErrorCode = "invalid_configuration"
	ErrCodeTransport      ErrorCode = "transport_error"
	ErrCodeMalformedDoc   ErrorCode = "malformed_document"
	ErrCodeAuthFailed     ErrorCode = "auth_failed"
	ErrCodeSessionInvalid ErrorCode = "session_invalid"
	ErrCodeServiceError   ErrorCode = "service_error"

	// ErrCodeNoValidLogout marks an inbound document that parsed as XML but
	// is not a CAS single-logout notification. The uppercase form is the
	// wire-level code CAS deployments expect in diagnostics.
	ErrCodeNoValidLogout ErrorCode = "NO_VALID_CAS_LOGOUT"
)

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// HTTPStatus returns the HTTP status code for this error code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeAuthFailed, ErrCodeSessionInvalid:
		return http.StatusUnauthorized
	case ErrCodeNoValidLogout:
		return http.StatusBadRequest
	case ErrCodeTransport, ErrCodeMalformedDoc:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is a structured error with code, message, and optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// AuthenticationError is an explicit rejection from the CAS server,
// carrying the code attribute and description text of the
// authenticationFailure element.
type AuthenticationError struct {
	Code        string
	Description string
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Code == "" {
		return e.Description
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// JSONErrorResponse is the standard JSON error format for protocol endpoints.
type JSONErrorResponse struct {
	Error JSONErrorDetail `json:"error"`
}

// JSONErrorDetail contains error details.
type JSONErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewJSONErrorResponse creates a JSON error response from an AppError.
func NewJSONErrorResponse(err *AppError) JSONErrorResponse {
	return JSONErrorResponse{
		Error: JSONErrorDetail{
			Code:    err.Code.String(),
			Message: err.Message,
		},
	}
}

// ConfigError creates a configuration error.
func ConfigError(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidConfig, Message: message}
}

// TransportError creates a transport error with the underlying cause.
func TransportError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeTransport, Message: message, Cause: cause}
}

// MalformedDocumentError creates a malformed document error.
func MalformedDocumentError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeMalformedDoc, Message: message, Cause: cause}
}

// NoValidLogoutError creates an error for documents that are well-formed XML
// but not CAS logout notifications.
func NoValidLogoutError(message string) *AppError {
	return &AppError{Code: ErrCodeNoValidLogout, Message: message}
}

// AuthError creates an authentication error with optional cause.
func AuthError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeAuthFailed, Message: message, Cause: cause}
}

// ServiceError creates a service error.
func ServiceError(message string) *AppError {
	return &AppError{Code: ErrCodeServiceError, Message: message}
}
