package client

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client error codes.
const (
	ErrCodeClientClosed      = "E_CLIENT_CLOSED"
	ErrCodeNoTransport       = "E_NO_TRANSPORT"
	ErrCodeInvalidOptions    = "E_INVALID_OPTIONS"
	ErrCodeTxTooLarge        = "E_TX_TOO_LARGE"
	ErrCodeInvalidOperations = "E_INVALID_OPERATIONS"
)

// StateError represents invalid client state for an operation.
type StateError struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	StackTrace []string               `json:"stack_trace,omitempty"`
}

// Error implements the error interface.
// Returns JSON format for backward compatibility.
func (e *StateError) Error() string {
	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}

	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}

	b, _ := json.Marshal(errorData)
	return string(b)
}

// FormatError formats the error based on debug mode.
func (e *StateError) FormatError(debugMode bool) string {
	if !debugMode {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
		"details": e.Details,
	}

	if len(e.StackTrace) > 0 {
		errorData["stack_trace"] = e.StackTrace
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// ErrClientClosed creates a StateError for operations attempted after Close.
func ErrClientClosed(operation string) error {
	return &StateError{
		Code:    ErrCodeClientClosed,
		Type:    "STATE_ERROR",
		Message: fmt.Sprintf("%s called on a closed client", operation),
		Details: map[string]interface{}{
			"operation": operation,
		},
		StackTrace: captureStackTrace(),
	}
}

// TransactionError represents a failed or rejected transactional write.
type TransactionError struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	BatchID    string                 `json:"batch_id,omitempty"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace []string               `json:"stack_trace,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *TransactionError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *TransactionError) FormatError(debugMode bool) string {
	if !debugMode {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
		}
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}

	if e.BatchID != "" {
		errorData["batch_id"] = e.BatchID
	}

	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}

	if e.Cause != nil {
		errorData["cause"] = map[string]interface{}{"message": e.Cause.Error()}
	}

	if len(e.StackTrace) > 0 {
		errorData["stack_trace"] = e.StackTrace
	}

	if !e.Timestamp.IsZero() {
		errorData["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// Unwrap returns the underlying cause error.
func (e *TransactionError) Unwrap() error {
	return e.Cause
}

func newTransactionError(code, message string, details map[string]interface{}, cause error) *TransactionError {
	return &TransactionError{
		Code:       code,
		Type:       "TRANSACTION_ERROR",
		Message:    message,
		Details:    details,
		Cause:      cause,
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

// OperationError reports an operation rejected before anything was sent.
type OperationError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Cause   error                  `json:"cause,omitempty"`
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *OperationError) FormatError(debugMode bool) string {
	if !debugMode {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// Unwrap returns the underlying validation error.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FormatError renders err with debug detail when it supports it.
func FormatError(err error, debugMode bool) string {
	if err == nil {
		return ""
	}
	if f, ok := err.(interface{ FormatError(bool) string }); ok {
		return f.FormatError(debugMode)
	}
	return err.Error()
}
