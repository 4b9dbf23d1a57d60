package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorType categorizes orchestration failures.
type ErrorType string

const (
	// ErrorTypeNotFound indicates a missing implementation, provider,
	// conversation, or turn.
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeUnavailable indicates an implementation marked unavailable.
	ErrorTypeUnavailable ErrorType = "implementation_unavailable"
	// ErrorTypeNoCredential indicates the owning provider has no usable API key.
	ErrorTypeNoCredential ErrorType = "no_credential_error"
	// ErrorTypeTransport indicates a network failure or non-2xx provider reply.
	ErrorTypeTransport ErrorType = "transport_error"
	// ErrorTypeMalformedResponse indicates an unparseable provider payload.
	ErrorTypeMalformedResponse ErrorType = "malformed_response_error"
	// ErrorTypePersistence indicates a storage-layer failure. Unlike the
	// per-call categories above, this aborts the whole operation.
	ErrorTypePersistence ErrorType = "persistence_error"
	// ErrorTypeInvalidRequest indicates a client error (400).
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
)

// OrchestrationError is the base error type for all service errors.
type OrchestrationError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Provider   string    `json:"provider,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *OrchestrationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *OrchestrationError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeTransport, ErrorTypeMalformedResponse:
		return http.StatusBadGateway
	case ErrorTypeUnavailable, ErrorTypeNoCredential:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *OrchestrationError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *OrchestrationError {
	return &OrchestrationError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewUnavailableError creates an error for an implementation that exists
// but is flagged unavailable.
func NewUnavailableError(message string) *OrchestrationError {
	return &OrchestrationError{
		Type:       ErrorTypeUnavailable,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewNoCredentialError creates an error for a provider with no usable key.
func NewNoCredentialError(provider, message string) *OrchestrationError {
	return &OrchestrationError{
		Type:       ErrorTypeNoCredential,
		Message:    message,
		StatusCode: http.StatusConflict,
		Provider:   provider,
	}
}

// NewTransportError creates an error for a failed outbound provider call.
func NewTransportError(provider string, statusCode int, message string, err error) *OrchestrationError {
	return &OrchestrationError{
		Type:       ErrorTypeTransport,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Err:        err,
	}
}

// NewMalformedResponseError creates an error for an unparseable provider payload.
func NewMalformedResponseError(provider, message string, err error) *OrchestrationError {
	return &OrchestrationError{
		Type:       ErrorTypeMalformedResponse,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Provider:   provider,
		Err:        err,
	}
}

// NewPersistenceError creates an error for a storage-layer failure.
func NewPersistenceError(message string, err error) *OrchestrationError {
	return &OrchestrationError{
		Type:       ErrorTypePersistence,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *OrchestrationError {
	return &OrchestrationError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// ParseProviderError parses an error response body from a provider and
// returns a transport error carrying the provider's own message where one
// can be extracted.
func ParseProviderError(provider string, statusCode int, body []byte, originalErr error) *OrchestrationError {
	var errorResponse struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		message = errorResponse.Error.Message
	}

	return NewTransportError(provider, statusCode, fmt.Sprintf("provider returned status %d: %s", statusCode, message), originalErr)
}
