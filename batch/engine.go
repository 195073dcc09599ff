package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dan-strohschein/tuplebatch/tuple"
)

// Engine runs non-transactional batch writes.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// BatchWrite chunks ops, sends every chunk through send under opts, and
// returns the aggregated result. The error return is non-nil only for invalid
// options or a nil send, in which case nothing was sent.
func (e *Engine) BatchWrite(ctx context.Context, ops tuple.OperationSet, opts Options, send SendFunc) (BatchResult, error) {
	if err := opts.Validate(); err != nil {
		return BatchResult{}, err
	}
	if send == nil {
		return BatchResult{}, newConfigError(ErrCodeMissingSender, "send", nil, "a send function is required")
	}

	chunks, err := Chunk(ops, opts.MaxOperationsPerChunk)
	if err != nil {
		return BatchResult{}, err
	}

	batchID := uuid.NewString()
	logger := e.logger.With(zap.String("batch_id", batchID))
	ctx = WithBatchID(ctx, batchID)
	start := time.Now()

	logger.Debug("batch started",
		zap.Int("operations", len(ops)),
		zap.Int("chunks", len(chunks)),
		zap.Int("parallelism", opts.MaxParallelRequests),
		zap.Int("max_retries", opts.MaxRetries),
	)

	d := Dispatcher{
		Parallelism:      opts.MaxParallelRequests,
		StopOnFirstError: opts.StopOnFirstError,
		Policy: RetryPolicy{
			MaxRetries: opts.MaxRetries,
			Backoff:    opts.backoff(),
			Logger:     logger,
		},
		Logger:          logger,
		OnChunkComplete: opts.OnChunkComplete,
	}
	outcomes := d.Dispatch(ctx, chunks, send)

	result := Aggregate(ops, chunks, outcomes)
	result.BatchID = batchID
	result.Duration = time.Since(start)

	fields := []zap.Field{
		zap.Int("operations", result.TotalOperations),
		zap.Int("chunks", result.TotalChunks),
		zap.Int("succeeded", result.SuccessfulChunks),
		zap.Int("failed", result.FailedChunks),
		zap.Int("not_attempted", len(result.NotAttempted)),
		zap.Duration("duration", result.Duration),
	}
	if result.IsCompleteSuccess() {
		logger.Info("batch completed", fields...)
	} else {
		logger.Warn("batch completed with failures", fields...)
	}
	return result, nil
}

// BatchWrite runs a batch write without logging.
func BatchWrite(ctx context.Context, ops tuple.OperationSet, opts Options, send SendFunc) (BatchResult, error) {
	return NewEngine(nil).BatchWrite(ctx, ops, opts, send)
}
