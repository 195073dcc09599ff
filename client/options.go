package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dan-strohschein/tuplebatch/batch"
	"github.com/dan-strohschein/tuplebatch/internal/metrics"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

// DefaultMaxOperationsPerRequest is the server's limit on operations in a
// single write request.
const DefaultMaxOperationsPerRequest = 100

// FailureSink receives the chunks of a batch that did not complete, so they
// can be inspected or replayed later.
type FailureSink interface {
	Record(ctx context.Context, batchID string, failed []batch.ChunkError, notAttempted []tuple.Chunk) error
}

// ClientOptions configures the tuple write client.
type ClientOptions struct {
	// MaxOperationsPerRequest is the largest write the server accepts.
	// Chunk sizes and transactional writes are checked against it.
	// Default: 100
	MaxOperationsPerRequest int

	// DebugMode enables verbose error serialization and per-attempt debug logs.
	// Default: false
	DebugMode bool

	// Logger is the logger to use. If nil, a JSON logger writing to stderr
	// at LogLevel is built.
	Logger *zap.Logger

	// LogLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR).
	// Default: "INFO"
	LogLevel string

	// Batch holds the default options for non-transactional writes.
	Batch batch.Options

	// FailureSink, if set, is called after every batch with failed or
	// never-attempted chunks.
	FailureSink FailureSink

	// Metrics, if set, records send and batch metrics through a MetricsHook.
	Metrics *metrics.Collector
}

// DefaultOptions returns ClientOptions with default values.
func DefaultOptions() ClientOptions {
	return ClientOptions{
		MaxOperationsPerRequest: DefaultMaxOperationsPerRequest,
		DebugMode:               false,
		LogLevel:                "INFO",
		Batch:                   batch.DefaultOptions(),
	}
}

// Validate checks the options, including the default batch options.
func (o ClientOptions) Validate() error {
	if o.MaxOperationsPerRequest < 1 {
		return &StateError{
			Code:    ErrCodeInvalidOptions,
			Type:    "STATE_ERROR",
			Message: fmt.Sprintf("max operations per request must be at least 1, got %d", o.MaxOperationsPerRequest),
			Details: map[string]interface{}{
				"option": "MaxOperationsPerRequest",
				"value":  o.MaxOperationsPerRequest,
			},
		}
	}
	return o.checkBatch(o.Batch)
}

// checkBatch validates batch options against the server request limit.
func (o ClientOptions) checkBatch(opts batch.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.MaxOperationsPerChunk > o.MaxOperationsPerRequest {
		return &batch.ConfigError{
			Code: batch.ErrCodeInvalidChunkSize,
			Type: "CONFIG_ERROR",
			Message: fmt.Sprintf("chunk size %d exceeds the server limit of %d operations per request",
				opts.MaxOperationsPerChunk, o.MaxOperationsPerRequest),
			Details: map[string]interface{}{
				"option": "MaxOperationsPerChunk",
				"value":  opts.MaxOperationsPerChunk,
				"limit":  o.MaxOperationsPerRequest,
			},
		}
	}
	return nil
}

// WriteOptions overrides client defaults for a single Write call.
type WriteOptions struct {
	// Transactional sends every operation in one request: all of them apply
	// or none do. No chunking and no retries.
	Transactional bool

	// Batch replaces the client's default batch options when non-nil.
	Batch *batch.Options
}
