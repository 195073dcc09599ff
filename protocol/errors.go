// Package protocol provides the error taxonomy and wire encoding shared by
// tuplebatch transports.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents standardized error codes across transport layers
type ErrorCode int

const (
	// Connection errors (1000-1099)
	ErrorCodeNetwork     ErrorCode = 1001
	ErrorCodeTimeout     ErrorCode = 1002
	ErrorCodeAuthFailed  ErrorCode = 1003
	ErrorCodeClosed      ErrorCode = 1004
	ErrorCodeRateLimited ErrorCode = 1010

	// Protocol errors (2000-2099)
	ErrorCodeProtocolError ErrorCode = 2001

	// Request errors (3000-3099)
	ErrorCodeValidation ErrorCode = 3001
	ErrorCodeNotFound   ErrorCode = 3002
	ErrorCodeConflict   ErrorCode = 3003

	// Server errors (5000-5099)
	ErrorCodeServerError ErrorCode = 5001
	ErrorCodeUnavailable ErrorCode = 5003
)

// String returns a short name for the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeNetwork:
		return "network"
	case ErrorCodeTimeout:
		return "timeout"
	case ErrorCodeAuthFailed:
		return "auth_failed"
	case ErrorCodeClosed:
		return "closed"
	case ErrorCodeRateLimited:
		return "rate_limited"
	case ErrorCodeProtocolError:
		return "protocol_error"
	case ErrorCodeValidation:
		return "validation"
	case ErrorCodeNotFound:
		return "not_found"
	case ErrorCodeConflict:
		return "conflict"
	case ErrorCodeServerError:
		return "server_error"
	case ErrorCodeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// TransportError represents a failed chunk send with a structured error code.
// Retryable is decided by the transport that produced the error; retry logic
// reads the flag and never inspects the message.
type TransportError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Retryable  bool                   `json:"isRetryable"`
	StatusCode int                    `json:"statusCode,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		detailsJSON, _ := json.Marshal(e.Details)
		msg = fmt.Sprintf("%s (details: %s)", msg, string(detailsJSON))
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a new transport error
func NewTransportError(code ErrorCode, message string, details map[string]interface{}) *TransportError {
	return &TransportError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: isRetryable(code),
	}
}

// isRetryable determines if an error code represents a retryable error
func isRetryable(code ErrorCode) bool {
	switch code {
	case ErrorCodeNetwork,
		ErrorCodeTimeout,
		ErrorCodeRateLimited,
		ErrorCodeServerError,
		ErrorCodeUnavailable:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err carries a retryable transport
// classification. Errors that were not classified by a transport are not
// retryable.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// CodeOf returns the transport error code carried by err, or 0.
func CodeOf(err error) ErrorCode {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Code
	}
	return 0
}

// NetworkError creates a retryable connection-level error
func NetworkError(message string, cause error) *TransportError {
	e := NewTransportError(ErrorCodeNetwork, message, nil)
	e.Cause = cause
	return e
}

// ClosedError reports a send on a transport that has been closed. It is
// never retryable.
func ClosedError() *TransportError {
	return NewTransportError(ErrorCodeClosed, "transport is closed", nil)
}

// TimeoutError creates a timeout transport error
func TimeoutError(message string, details map[string]interface{}) *TransportError {
	return NewTransportError(ErrorCodeTimeout, message, details)
}

// AuthError creates an authentication transport error
func AuthError(message string, details map[string]interface{}) *TransportError {
	return NewTransportError(ErrorCodeAuthFailed, message, details)
}

// RateLimitedError creates a rate limit transport error
func RateLimitedError(message string, details map[string]interface{}) *TransportError {
	return NewTransportError(ErrorCodeRateLimited, message, details)
}

// ValidationError creates an error for a request the server refused as malformed
func ValidationError(message string, details map[string]interface{}) *TransportError {
	return NewTransportError(ErrorCodeValidation, message, details)
}

// ProtocolError creates an error for a request or response that could not be encoded or decoded
func ProtocolError(message string, cause error) *TransportError {
	e := NewTransportError(ErrorCodeProtocolError, message, nil)
	e.Cause = cause
	return e
}

// ServerError creates a retryable server-side error
func ServerError(message string, details map[string]interface{}) *TransportError {
	return NewTransportError(ErrorCodeServerError, message, details)
}

// FromHTTPStatus classifies a non-2xx write response. The body is decoded
// as an API error when possible so the server's message is preserved.
func FromHTTPStatus(status int, body []byte) *TransportError {
	apiErr := DecodeAPIError(body)
	message := apiErr.Message
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = fmt.Sprintf("unexpected status %d", status)
	}

	details := map[string]interface{}{"status": status}
	if apiErr.Code != "" {
		details["apiCode"] = apiErr.Code
	}

	var code ErrorCode
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		code = ErrorCodeValidation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		code = ErrorCodeAuthFailed
	case status == http.StatusNotFound:
		code = ErrorCodeNotFound
	case status == http.StatusConflict:
		code = ErrorCodeConflict
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		code = ErrorCodeTimeout
	case status == http.StatusTooManyRequests:
		code = ErrorCodeRateLimited
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable:
		code = ErrorCodeUnavailable
	case status >= 500:
		code = ErrorCodeServerError
	default:
		code = ErrorCodeValidation
	}

	e := NewTransportError(code, message, details)
	e.StatusCode = status
	return e
}

// ToJSON serializes the error to JSON for cross-language transmission
func (e *TransportError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes a transport error from JSON
func FromJSON(data []byte) (*TransportError, error) {
	var err TransportError
	if unmarshalErr := json.Unmarshal(data, &err); unmarshalErr != nil {
		return nil, unmarshalErr
	}
	return &err, nil
}
