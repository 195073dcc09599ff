package batch

import (
	"time"
)

// Default option values.
const (
	DefaultMaxOperationsPerChunk = 100
	DefaultMaxParallelRequests   = 1
	DefaultMaxRetries            = 0
	DefaultRetryDelay            = time.Second
)

// Options configures a single BatchWrite call.
type Options struct {
	// MaxOperationsPerChunk is the upper bound on operations per chunk.
	MaxOperationsPerChunk int

	// MaxParallelRequests is the ceiling on concurrently in-flight chunk sends.
	MaxParallelRequests int

	// MaxRetries is the number of additional attempts per chunk beyond the first.
	MaxRetries int

	// RetryDelay is the pause between attempts of the same chunk.
	RetryDelay time.Duration

	// StopOnFirstError halts admission of new chunks after the first failure.
	StopOnFirstError bool

	// Backoff replaces the fixed RetryDelay when set.
	Backoff Backoff

	// OnChunkComplete is called once per chunk outcome. It may be called
	// from several goroutines at once.
	OnChunkComplete func(ChunkOutcome)
}

// DefaultOptions returns the default batch options
func DefaultOptions() Options {
	return Options{
		MaxOperationsPerChunk: DefaultMaxOperationsPerChunk,
		MaxParallelRequests:   DefaultMaxParallelRequests,
		MaxRetries:            DefaultMaxRetries,
		RetryDelay:            DefaultRetryDelay,
	}
}

// Validate checks the options and returns a *ConfigError for the first
// invalid value.
func (o Options) Validate() error {
	if o.MaxOperationsPerChunk < 1 {
		return newConfigError(ErrCodeInvalidChunkSize, "MaxOperationsPerChunk", o.MaxOperationsPerChunk,
			"max operations per chunk must be at least 1")
	}
	if o.MaxParallelRequests < 1 {
		return newConfigError(ErrCodeInvalidParallelism, "MaxParallelRequests", o.MaxParallelRequests,
			"max parallel requests must be at least 1")
	}
	if o.MaxRetries < 0 {
		return newConfigError(ErrCodeInvalidRetries, "MaxRetries", o.MaxRetries,
			"max retries must not be negative")
	}
	if o.RetryDelay < 0 {
		return newConfigError(ErrCodeInvalidRetryDelay, "RetryDelay", o.RetryDelay.String(),
			"retry delay must not be negative")
	}
	return nil
}

func (o Options) backoff() Backoff {
	if o.Backoff != nil {
		return o.Backoff
	}
	return FixedBackoff(o.RetryDelay)
}
