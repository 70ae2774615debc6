// Package errors defines the structured API error types rendered by the
// relay's HTTP surface, plus the sentinel errors that mark benign absence
// in partner lookups.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Sentinel errors for benign absence. Callers treat these as "nothing to
// reconcile", never as a failure: a missing license on an update event or a
// webhook event Keygen does not know about are expected terminal states.
var (
	ErrLicenseNotFound = errors.New("license not found")
	ErrEventNotFound   = errors.New("webhook event not found")
)

// IsNotFound reports whether err is one of the benign absence sentinels
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLicenseNotFound) || errors.Is(err, ErrEventNotFound)
}

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined error types for the relay's HTTP surface
var (
	// 400 Bad Request
	ErrBadSignature   = New(http.StatusBadRequest, "BAD_SIGNATURE", "Bad signature or public key")
	ErrInvalidRequest = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")

	// 500 Internal Server Error
	ErrPartnerAPI     = New(http.StatusInternalServerError, "PARTNER_API_FAILURE", "Partner API call failed")
	ErrInternalServer = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")

	// 503 Service Unavailable
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
)

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// PartnerAPIError wraps a partner service failure with its detail
func PartnerAPIError(service string, err error) *APIError {
	return NewWithDetails(http.StatusInternalServerError, "PARTNER_API_FAILURE",
		fmt.Sprintf("%s API call failed", service), err.Error())
}

// ErrorResponse represents a standard error response body
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err *APIError) *ErrorResponse {
	return &ErrorResponse{Success: false, Error: err}
}

// Render implements the render.Renderer interface
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return e.Error.Render(w, r)
}
