package casauth

import (
	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
)

// Re-export error types from domain package so host code only needs the
// root import.
type ErrorCode = domain.ErrorCode
type AppError = domain.AppError
type AuthenticationError = domain.AuthenticationError
type JSONErrorResponse = domain.JSONErrorResponse
type JSONErrorDetail = domain.JSONErrorDetail

// Re-export error code constants
const (
	ErrCodeInvalidConfig  = domain.ErrCodeInvalidConfig
	ErrCodeTransport      = domain.ErrCodeTransport
	ErrCodeMalformedDoc   = domain.ErrCodeMalformedDoc
	ErrCodeAuthFailed     = domain.ErrCodeAuthFailed
	ErrCodeSessionInvalid = domain.ErrCodeSessionInvalid
	ErrCodeServiceError   = domain.ErrCodeServiceError
	ErrCodeNoValidLogout  = domain.ErrCodeNoValidLogout
)

// Re-export error constructors
var (
	ConfigError            = domain.ConfigError
	TransportError         = domain.TransportError
	MalformedDocumentError = domain.MalformedDocumentError
	NoValidLogoutError     = domain.NoValidLogoutError
	AuthError              = domain.AuthError
	ServiceError           = domain.ServiceError
	NewJSONErrorResponse   = domain.NewJSONErrorResponse
)
