package batch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dan-strohschein/tuplebatch/tuple"
)

// Configuration error codes.
const (
	ErrCodeInvalidChunkSize   = "E_INVALID_CHUNK_SIZE"
	ErrCodeInvalidParallelism = "E_INVALID_PARALLELISM"
	ErrCodeInvalidRetries     = "E_INVALID_RETRIES"
	ErrCodeInvalidRetryDelay  = "E_INVALID_RETRY_DELAY"
	ErrCodeMissingSender      = "E_MISSING_SENDER"
)

// Batch error codes.
const (
	ErrCodeBatchFailed     = "E_BATCH_FAILED"
	ErrCodeBatchPartial    = "E_BATCH_PARTIAL"
	ErrCodeBatchIncomplete = "E_BATCH_INCOMPLETE"
)

// ConfigError reports invalid batch options. It is returned before any chunk
// is built or sent.
type ConfigError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *ConfigError) FormatError(debugMode bool) string {
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

func newConfigError(code, option string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Type:    "CONFIG_ERROR",
		Message: message,
		Details: map[string]interface{}{
			"option": option,
			"value":  value,
		},
	}
}

// ChunkError pairs a failed chunk with the last error observed for it.
type ChunkError struct {
	ChunkIndex int
	Err        error
	Chunk      tuple.Chunk
}

// Error implements the error interface.
func (e ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.ChunkIndex, e.Err)
}

// Unwrap returns the chunk's error.
func (e ChunkError) Unwrap() error {
	return e.Err
}

// BatchError summarizes a batch that was not a complete success. It unwraps
// to every chunk error, so errors.Is and errors.As see transport errors.
type BatchError struct {
	Code             string       `json:"code"`
	Type             string       `json:"type"`
	Message          string       `json:"message"`
	BatchID          string       `json:"batch_id,omitempty"`
	TotalChunks      int          `json:"total_chunks"`
	SuccessfulChunks int          `json:"successful_chunks"`
	FailedChunks     int          `json:"failed_chunks"`
	NotAttempted     int          `json:"not_attempted"`
	Errors           []ChunkError `json:"-"`
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode. Debug output lists every
// chunk error.
func (e *BatchError) FormatError(debugMode bool) string {
	if !debugMode {
		if len(e.Errors) > 0 {
			return fmt.Sprintf("%s: %s (first: %s)", e.Code, e.Message, e.Errors[0].Error())
		}
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	chunkErrors := make([]string, len(e.Errors))
	for i, ce := range e.Errors {
		chunkErrors[i] = ce.Error()
	}
	errorData := map[string]interface{}{
		"code":              e.Code,
		"type":              e.Type,
		"message":           e.Message,
		"batch_id":          e.BatchID,
		"total_chunks":      e.TotalChunks,
		"successful_chunks": e.SuccessfulChunks,
		"failed_chunks":     e.FailedChunks,
		"not_attempted":     e.NotAttempted,
		"errors":            chunkErrors,
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// Unwrap returns the chunk errors.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, ce := range e.Errors {
		errs[i] = ce
	}
	return errs
}

func summarize(r BatchResult) string {
	var parts []string
	if r.FailedChunks > 0 {
		parts = append(parts, fmt.Sprintf("%d of %d chunks failed", r.FailedChunks, r.TotalChunks))
	}
	if n := len(r.NotAttempted); n > 0 {
		parts = append(parts, fmt.Sprintf("%d of %d chunks not attempted", n, r.TotalChunks))
	}
	return strings.Join(parts, ", ")
}
