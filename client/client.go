package client

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dan-strohschein/tuplebatch/batch"
	"github.com/dan-strohschein/tuplebatch/internal/metrics"
	"github.com/dan-strohschein/tuplebatch/logging"
	"github.com/dan-strohschein/tuplebatch/transport"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

// Client writes relationship tuples through a transport, either as one
// transactional request or as a chunked, concurrent, retrying batch.
type Client struct {
	transport transport.Transport
	opts      ClientOptions
	engine    *batch.Engine
	logger    *zap.Logger
	debugMode atomic.Bool
	closed    atomic.Bool
	hooks     []hookEntry  // Registered hooks in execution order
	hooksMu   sync.RWMutex // Protects hooks slice
}

// WriteRequest holds the tuples to write and delete in one call.
type WriteRequest struct {
	Writes  []tuple.TupleKey
	Deletes []tuple.TupleKey
}

// NewClient creates a client sending through tr.
// If opts is nil, default options are used. Zero chunk size and parallelism
// in opts.Batch take their defaults.
func NewClient(tr transport.Transport, opts *ClientOptions) (*Client, error) {
	if tr == nil {
		return nil, &StateError{
			Code:    ErrCodeNoTransport,
			Type:    "STATE_ERROR",
			Message: "a transport is required",
		}
	}
	if opts == nil {
		defaultOpts := DefaultOptions()
		opts = &defaultOpts
	}

	o := *opts
	if o.MaxOperationsPerRequest == 0 {
		o.MaxOperationsPerRequest = DefaultMaxOperationsPerRequest
	}
	if o.Batch.MaxOperationsPerChunk == 0 {
		o.Batch.MaxOperationsPerChunk = min(batch.DefaultMaxOperationsPerChunk, o.MaxOperationsPerRequest)
	}
	if o.Batch.MaxParallelRequests == 0 {
		o.Batch.MaxParallelRequests = batch.DefaultMaxParallelRequests
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	logger := o.Logger
	if logger == nil {
		logger = logging.New(o.LogLevel, os.Stderr)
	}
	logger = logger.With(zap.String("component", "client"))

	c := &Client{
		transport: tr,
		opts:      o,
		engine:    batch.NewEngine(logger),
		logger:    logger,
	}
	c.debugMode.Store(o.DebugMode)

	if o.Metrics != nil {
		c.RegisterHook(NewMetricsHook(o.Metrics))
	}

	return c, nil
}

// Write applies req: all writes followed by all deletes. Without
// WriteOptions, or with Transactional unset, the operations are chunked and
// sent under the batch options; per-chunk failures are reported in the
// result, never as the error. The error is non-nil only when nothing was
// sent: closed client, invalid operations, invalid options, or a
// transactional write over the request limit.
func (c *Client) Write(ctx context.Context, req WriteRequest, wo *WriteOptions) (batch.BatchResult, error) {
	return c.WriteOperations(ctx, tuple.NewOperationSet(req.Writes, req.Deletes), wo)
}

// WriteOperations is Write for a prebuilt operation set, sent in its given
// order.
func (c *Client) WriteOperations(ctx context.Context, ops tuple.OperationSet, wo *WriteOptions) (batch.BatchResult, error) {
	if c.closed.Load() {
		return batch.BatchResult{}, ErrClientClosed("Write")
	}

	if err := ops.Validate(); err != nil {
		return batch.BatchResult{}, &OperationError{
			Code:    ErrCodeInvalidOperations,
			Type:    "OPERATION_ERROR",
			Message: err.Error(),
			Details: map[string]interface{}{
				"writes":  ops.Writes(),
				"deletes": ops.Deletes(),
			},
			Cause: err,
		}
	}

	if wo != nil && wo.Transactional {
		return c.writeTransactional(ctx, ops)
	}

	opts := c.opts.Batch
	if wo != nil && wo.Batch != nil {
		opts = *wo.Batch
	}
	if err := c.opts.checkBatch(opts); err != nil {
		return batch.BatchResult{}, err
	}

	result, err := c.engine.BatchWrite(ctx, ops, opts, c.send)
	if err != nil {
		return result, err
	}
	c.finishBatch(ctx, ops, result)
	return result, nil
}

// WriteTuples writes keys.
func (c *Client) WriteTuples(ctx context.Context, keys []tuple.TupleKey, wo *WriteOptions) (batch.BatchResult, error) {
	return c.Write(ctx, WriteRequest{Writes: keys}, wo)
}

// DeleteTuples deletes keys.
func (c *Client) DeleteTuples(ctx context.Context, keys []tuple.TupleKey, wo *WriteOptions) (batch.BatchResult, error) {
	return c.Write(ctx, WriteRequest{Deletes: keys}, wo)
}

// Close closes the transport. Later writes fail with E_CLIENT_CLOSED.
// Calling Close more than once is a no-op.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Info("closing client")
	if err := c.transport.Close(); err != nil {
		c.logger.Warn("error closing transport", zap.Error(err))
		return err
	}
	return nil
}

// IsHealthy reports whether the client is open and its transport healthy.
func (c *Client) IsHealthy() bool {
	return !c.closed.Load() && c.transport.IsHealthy()
}

// GetVersion returns the library version.
func (c *Client) GetVersion() string {
	return Version
}

// send is the batch.SendFunc handed to the engine: one attempt at one chunk.
func (c *Client) send(ctx context.Context, chunk tuple.Chunk) error {
	attempt := batch.AttemptFromContext(ctx)
	if attempt == 0 {
		attempt = 1
	}
	return c.sendAttempt(ctx, chunk, attempt, false)
}

// sendAttempt runs the hook chain around one transport send.
func (c *Client) sendAttempt(ctx context.Context, chunk tuple.Chunk, attempt int, transactional bool) error {
	start := time.Now()
	traceID := uuid.New().String()
	debugMode := c.IsDebugMode()

	hookCtx := &HookContext{
		BatchID:       batch.BatchIDFromContext(ctx),
		ChunkIndex:    chunk.Index,
		Attempt:       attempt,
		Operations:    chunk.Len(),
		Writes:        len(chunk.Writes()),
		Deletes:       len(chunk.Deletes()),
		Fingerprint:   chunk.Fingerprint(),
		Transactional: transactional,
		TraceID:       traceID,
		StartTime:     start,
		Metadata:      make(map[string]interface{}),
		ctx:           ctx,
	}

	ran, err := c.executeBeforeHooks(c.snapshotHooks(), hookCtx)
	if err == nil {
		if debugMode {
			c.logger.Debug("sending chunk",
				zap.String("batch_id", hookCtx.BatchID),
				zap.Int("chunk", chunk.Index),
				zap.Int("attempt", attempt),
				zap.Int("operations", hookCtx.Operations),
				zap.String("fingerprint", fmt.Sprintf("%016x", hookCtx.Fingerprint)),
				zap.String("trace_id", traceID))
		}
		err = c.transport.SendChunk(hookCtx.Context(), chunk)
	}

	hookCtx.Error = err
	hookCtx.Duration = time.Since(start)
	c.executeAfterHooks(ctx, ran, hookCtx)

	if debugMode {
		c.logger.Debug("chunk send finished",
			zap.String("batch_id", hookCtx.BatchID),
			zap.Int("chunk", chunk.Index),
			zap.Int("attempt", attempt),
			zap.String("trace_id", traceID),
			zap.Duration("elapsed", hookCtx.Duration),
			zap.Bool("success", err == nil))
	}
	return err
}

// finishBatch records batch metrics and hands failures to the sink.
func (c *Client) finishBatch(ctx context.Context, ops tuple.OperationSet, result batch.BatchResult) {
	if c.opts.Metrics != nil {
		recordBatchMetrics(c.opts.Metrics, ops, result)
	}

	if result.IsCompleteSuccess() || c.opts.FailureSink == nil {
		return
	}

	// The sink must see failures even when ctx is what stopped the batch.
	sinkCtx := context.WithoutCancel(ctx)
	if err := c.opts.FailureSink.Record(sinkCtx, result.BatchID, result.Errors, result.NotAttempted); err != nil {
		c.logger.Error("failed to record batch failures",
			zap.String("batch_id", result.BatchID),
			zap.Int("failed", len(result.Errors)),
			zap.Int("not_attempted", len(result.NotAttempted)),
			zap.Error(err))
		return
	}
	c.logger.Info("recorded batch failures",
		zap.String("batch_id", result.BatchID),
		zap.Int("failed", len(result.Errors)),
		zap.Int("not_attempted", len(result.NotAttempted)))
}

func recordBatchMetrics(m *metrics.Collector, ops tuple.OperationSet, result batch.BatchResult) {
	m.RecordBatch(resultLabel(result))

	failedWrites, failedDeletes := 0, 0
	for _, ce := range result.Errors {
		failedWrites += len(ce.Chunk.Writes())
		failedDeletes += len(ce.Chunk.Deletes())
	}
	skippedWrites, skippedDeletes := 0, 0
	for _, ch := range result.NotAttempted {
		skippedWrites += len(ch.Writes())
		skippedDeletes += len(ch.Deletes())
	}

	writes, deletes := ops.Writes(), ops.Deletes()
	kw, kd := tuple.KindWrite.String(), tuple.KindDelete.String()
	m.RecordOperations(kw, metrics.OpStatusSucceeded, writes-failedWrites-skippedWrites)
	m.RecordOperations(kd, metrics.OpStatusSucceeded, deletes-failedDeletes-skippedDeletes)
	m.RecordOperations(kw, metrics.OpStatusFailed, failedWrites)
	m.RecordOperations(kd, metrics.OpStatusFailed, failedDeletes)
	m.RecordOperations(kw, metrics.OpStatusNotAttempted, skippedWrites)
	m.RecordOperations(kd, metrics.OpStatusNotAttempted, skippedDeletes)
}

func resultLabel(r batch.BatchResult) string {
	switch {
	case r.IsCompleteSuccess():
		return metrics.ResultComplete
	case r.Halted():
		return metrics.ResultHalted
	case r.IsPartialSuccess():
		return metrics.ResultPartial
	default:
		return metrics.ResultFailed
	}
}
