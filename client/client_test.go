package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dan-strohschein/tuplebatch/batch"
	"github.com/dan-strohschein/tuplebatch/internal/metrics"
	"github.com/dan-strohschein/tuplebatch/protocol"
	"github.com/dan-strohschein/tuplebatch/testutil"
	"github.com/dan-strohschein/tuplebatch/transport"
	"github.com/dan-strohschein/tuplebatch/transport/mock"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

func testChunk(index, n int) tuple.Chunk {
	ops := testutil.BuildOperations(n, 0)
	return tuple.Chunk{Index: index, Operations: ops}
}

func newTestClient(t *testing.T, tr transport.Transport, mutate func(*ClientOptions)) *Client {
	t.Helper()
	opts := DefaultOptions()
	opts.Logger = zap.NewNop()
	opts.Batch.RetryDelay = time.Millisecond
	if mutate != nil {
		mutate(&opts)
	}
	c, err := NewClient(tr, &opts)
	require.NoError(t, err)
	return c
}

type recordingSink struct {
	mu           sync.Mutex
	calls        int
	batchID      string
	failed       []batch.ChunkError
	notAttempted []tuple.Chunk
	err          error
}

func (s *recordingSink) Record(ctx context.Context, batchID string, failed []batch.ChunkError, notAttempted []tuple.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.batchID = batchID
	s.failed = failed
	s.notAttempted = notAttempted
	return s.err
}

func TestNewClient(t *testing.T) {
	t.Run("requires transport", func(t *testing.T) {
		_, err := NewClient(nil, nil)
		var se *StateError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, ErrCodeNoTransport, se.Code)
	})

	t.Run("defaults", func(t *testing.T) {
		c, err := NewClient(mock.NewMockTransport(), &ClientOptions{Logger: zap.NewNop()})
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxOperationsPerRequest, c.opts.MaxOperationsPerRequest)
		assert.Equal(t, batch.DefaultMaxOperationsPerChunk, c.opts.Batch.MaxOperationsPerChunk)
		assert.Equal(t, batch.DefaultMaxParallelRequests, c.opts.Batch.MaxParallelRequests)
		assert.False(t, c.IsDebugMode())
	})

	t.Run("chunk size defaults to the request limit when smaller", func(t *testing.T) {
		c, err := NewClient(mock.NewMockTransport(), &ClientOptions{Logger: zap.NewNop(), MaxOperationsPerRequest: 10})
		require.NoError(t, err)
		assert.Equal(t, 10, c.opts.Batch.MaxOperationsPerChunk)
	})

	t.Run("rejects chunk size above the request limit", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Logger = zap.NewNop()
		opts.Batch.MaxOperationsPerChunk = 101
		_, err := NewClient(mock.NewMockTransport(), &opts)
		var ce *batch.ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, batch.ErrCodeInvalidChunkSize, ce.Code)
	})

	t.Run("registers metrics hook with a collector", func(t *testing.T) {
		c := newTestClient(t, mock.NewMockTransport(), func(o *ClientOptions) {
			o.Metrics = metrics.NewCollector(prometheus.NewRegistry(), nil)
		})
		assert.Equal(t, []string{"metrics"}, c.GetHooks())
	})
}

func TestWriteChunked(t *testing.T) {
	tr := mock.NewMockTransport()
	c := newTestClient(t, tr, func(o *ClientOptions) {
		o.Batch.MaxOperationsPerChunk = 2
		o.Batch.MaxParallelRequests = 3
	})

	req := WriteRequest{
		Writes:  testutil.BuildKeys(3),
		Deletes: testutil.BuildKeys(2),
	}
	result, err := c.Write(context.Background(), req, nil)
	require.NoError(t, err)

	assert.True(t, result.IsCompleteSuccess())
	assert.Equal(t, 5, result.TotalOperations)
	assert.Equal(t, 3, result.TotalChunks)
	assert.NotEmpty(t, result.BatchID)
	assert.Equal(t, 3, tr.GetSendCallCount())
	assert.LessOrEqual(t, tr.GetMaxInFlight(), 3)
	assert.NoError(t, result.Err())
}

func TestDeleteTuples(t *testing.T) {
	tr := mock.NewMockTransport()
	c := newTestClient(t, tr, func(o *ClientOptions) {
		o.Batch.MaxOperationsPerChunk = 2
	})

	keys := testutil.BuildKeys(3)
	result, err := c.DeleteTuples(context.Background(), keys, nil)
	require.NoError(t, err)
	assert.True(t, result.IsCompleteSuccess())
	assert.Equal(t, 2, result.TotalChunks)

	var deleted []tuple.TupleKey
	for _, chunk := range tr.GetSendHistory() {
		assert.Empty(t, chunk.Writes())
		deleted = append(deleted, chunk.Deletes()...)
	}
	assert.ElementsMatch(t, keys, deleted)

	empty, err := c.DeleteTuples(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalChunks)
	assert.Equal(t, 2, tr.GetSendCallCount())
}

func TestWritePartialFailureReportsChunks(t *testing.T) {
	tr := mock.NewMockTransport().
		WithChunkErrors(1, testutil.PermanentError("invalid tuple"))
	sink := &recordingSink{}
	c := newTestClient(t, tr, func(o *ClientOptions) {
		o.Batch.MaxOperationsPerChunk = 2
		o.FailureSink = sink
	})

	result, err := c.WriteTuples(context.Background(), testutil.BuildKeys(6), nil)
	require.NoError(t, err)

	assert.True(t, result.IsPartialSuccess())
	assert.Equal(t, 2, result.SuccessfulChunks)
	assert.Equal(t, 1, result.FailedChunks)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].ChunkIndex)
	assert.Equal(t, protocol.ErrorCodeValidation, protocol.CodeOf(result.Err()))

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, result.BatchID, sink.batchID)
	assert.Len(t, sink.failed, 1)
	assert.Empty(t, sink.notAttempted)
}

func TestWriteRetriesThroughHooks(t *testing.T) {
	tr := mock.NewMockTransport().
		WithChunkErrors(0, testutil.RetryableError("reset"), testutil.RetryableError("reset"))
	c := newTestClient(t, tr, func(o *ClientOptions) {
		o.Batch.MaxRetries = 3
	})

	hook := &TestHook{name: "capture"}
	c.RegisterHook(hook)

	result, err := c.WriteTuples(context.Background(), testutil.BuildKeys(1), nil)
	require.NoError(t, err)
	assert.True(t, result.IsCompleteSuccess())
	assert.Equal(t, 3, tr.GetAttemptCount(0))
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 3, result.Outcomes[0].Attempts)

	before, after := hook.calls()
	assert.Equal(t, 3, before)
	assert.Equal(t, 3, after)
	assert.Equal(t, 3, hook.lastCtx.Attempt)
	assert.Equal(t, result.BatchID, hook.lastCtx.BatchID)
}

func TestWritePerCallOptions(t *testing.T) {
	tr := mock.NewMockTransport().
		WithChunkErrors(0, testutil.PermanentError("bad"))
	sink := &recordingSink{}
	c := newTestClient(t, tr, func(o *ClientOptions) {
		o.FailureSink = sink
	})

	override := batch.DefaultOptions()
	override.MaxOperationsPerChunk = 1
	override.StopOnFirstError = true

	result, err := c.WriteTuples(context.Background(), testutil.BuildKeys(4), &WriteOptions{Batch: &override})
	require.NoError(t, err)
	assert.Equal(t, 4, result.TotalChunks)
	assert.Equal(t, 1, result.FailedChunks)
	assert.True(t, result.Halted())
	assert.Len(t, result.NotAttempted, 3)
	assert.Len(t, sink.notAttempted, 3)

	override.MaxOperationsPerChunk = 500
	_, err = c.WriteTuples(context.Background(), testutil.BuildKeys(1), &WriteOptions{Batch: &override})
	var ce *batch.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestWriteOperationsKeepsGivenOrder(t *testing.T) {
	tr := mock.NewMockTransport()
	c := newTestClient(t, tr, func(o *ClientOptions) { o.Batch.MaxOperationsPerChunk = 2 })

	keys := testutil.BuildKeys(3)
	ops := tuple.OperationSet{tuple.Delete(keys[0]), tuple.Write(keys[1]), tuple.Delete(keys[2])}

	result, err := c.WriteOperations(context.Background(), ops, nil)
	require.NoError(t, err)
	require.True(t, result.IsCompleteSuccess())

	var sent []tuple.Operation
	for _, ch := range tr.GetSendHistory() {
		sent = append(sent, ch.Operations...)
	}
	assert.Equal(t, []tuple.Operation(ops), sent)
}

func TestWriteRejectsInvalidOperations(t *testing.T) {
	tr := mock.NewMockTransport()
	c := newTestClient(t, tr, nil)

	keys := []tuple.TupleKey{testutil.BuildKey(testutil.WithUser(""))}
	_, err := c.WriteTuples(context.Background(), keys, nil)

	var oe *OperationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, ErrCodeInvalidOperations, oe.Code)
	assert.Equal(t, 0, tr.GetSendCallCount())
}

func TestWriteTransactional(t *testing.T) {
	t.Run("single request", func(t *testing.T) {
		tr := mock.NewMockTransport()
		c := newTestClient(t, tr, func(o *ClientOptions) {
			o.Batch.MaxOperationsPerChunk = 2
		})

		result, err := c.Write(context.Background(), WriteRequest{
			Writes:  testutil.BuildKeys(5),
			Deletes: testutil.BuildKeys(3),
		}, &WriteOptions{Transactional: true})
		require.NoError(t, err)

		assert.True(t, result.IsCompleteSuccess())
		assert.Equal(t, 1, result.TotalChunks)
		assert.Equal(t, 8, result.TotalOperations)
		require.Len(t, tr.GetSendHistory(), 1)
		assert.Equal(t, 8, tr.GetSendHistory()[0].Len())
	})

	t.Run("no retry on failure", func(t *testing.T) {
		tr := mock.NewMockTransport().WithSendError(testutil.RetryableError("reset"))
		sink := &recordingSink{}
		c := newTestClient(t, tr, func(o *ClientOptions) {
			o.Batch.MaxRetries = 5
			o.FailureSink = sink
		})

		result, err := c.WriteTuples(context.Background(), testutil.BuildKeys(3), &WriteOptions{Transactional: true})
		require.NoError(t, err)
		assert.Equal(t, 1, result.FailedChunks)
		assert.Equal(t, 1, tr.GetSendCallCount())
		assert.True(t, protocol.IsRetryable(result.Err()))
		assert.Equal(t, 1, sink.calls)
	})

	t.Run("too large", func(t *testing.T) {
		tr := mock.NewMockTransport()
		c := newTestClient(t, tr, func(o *ClientOptions) {
			o.MaxOperationsPerRequest = 10
			o.Batch.MaxOperationsPerChunk = 10
		})

		_, err := c.WriteTuples(context.Background(), testutil.BuildKeys(11), &WriteOptions{Transactional: true})
		var te *TransactionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, ErrCodeTxTooLarge, te.Code)
		assert.Equal(t, 0, tr.GetSendCallCount())
	})

	t.Run("empty", func(t *testing.T) {
		tr := mock.NewMockTransport()
		c := newTestClient(t, tr, nil)

		result, err := c.Write(context.Background(), WriteRequest{}, &WriteOptions{Transactional: true})
		require.NoError(t, err)
		assert.True(t, result.IsCompleteSuccess())
		assert.Equal(t, 0, tr.GetSendCallCount())
	})
}

func TestSinkErrorDoesNotChangeResult(t *testing.T) {
	tr := mock.NewMockTransport().WithSendError(testutil.PermanentError("bad"))
	logger, logs := testutil.ObservedLogger(zapcore.DebugLevel)
	sink := &recordingSink{err: errors.New("disk full")}
	c := newTestClient(t, tr, func(o *ClientOptions) {
		o.Logger = logger
		o.FailureSink = sink
	})

	result, err := c.WriteTuples(context.Background(), testutil.BuildKeys(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FailedChunks)
	assert.Equal(t, 1, logs.FilterMessage("failed to record batch failures").Len())
}

func TestSinkRunsAfterCancellation(t *testing.T) {
	tr := mock.NewMockTransport()
	sink := &recordingSink{}
	c := newTestClient(t, tr, func(o *ClientOptions) {
		o.Batch.MaxOperationsPerChunk = 1
		o.FailureSink = sink
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := c.WriteTuples(ctx, testutil.BuildKeys(3), nil)
	require.NoError(t, err)
	assert.False(t, result.IsCompleteSuccess())
	assert.Equal(t, 1, sink.calls)
	assert.Len(t, sink.notAttempted, 3-result.Attempted())
}

func TestClientClose(t *testing.T) {
	tr := mock.NewMockTransport()
	c := newTestClient(t, tr, nil)

	assert.True(t, c.IsHealthy())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, tr.GetCloseCallCount())
	assert.False(t, c.IsHealthy())

	_, err := c.WriteTuples(context.Background(), testutil.BuildKeys(1), nil)
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeClientClosed, se.Code)
	assert.Contains(t, se.FormatError(false), "E_CLIENT_CLOSED")
}

func TestIsHealthyFollowsTransport(t *testing.T) {
	tr := mock.NewMockTransport().WithHealthy(false)
	c := newTestClient(t, tr, nil)
	assert.False(t, c.IsHealthy())
}

func TestWriteRecordsBatchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr := mock.NewMockTransport().
		WithChunkErrors(1, testutil.PermanentError("bad"))
	c := newTestClient(t, tr, func(o *ClientOptions) {
		o.Batch.MaxOperationsPerChunk = 2
		o.Metrics = metrics.NewCollector(reg, nil)
	})

	_, err := c.Write(context.Background(), WriteRequest{
		Writes:  testutil.BuildKeys(3),
		Deletes: testutil.BuildKeys(1),
	}, nil)
	require.NoError(t, err)

	expected := `
# HELP tuplebatch_batches_total Total number of batch writes by result
# TYPE tuplebatch_batches_total counter
tuplebatch_batches_total{result="partial"} 1
# HELP tuplebatch_operations_total Total number of tuple operations by kind and status
# TYPE tuplebatch_operations_total counter
tuplebatch_operations_total{kind="delete",status="failed"} 1
tuplebatch_operations_total{kind="write",status="failed"} 1
tuplebatch_operations_total{kind="write",status="succeeded"} 2
`
	assert.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected),
		"tuplebatch_batches_total", "tuplebatch_operations_total"))

	sends := `
# HELP tuplebatch_chunk_sends_total Total number of chunk send attempts
# TYPE tuplebatch_chunk_sends_total counter
tuplebatch_chunk_sends_total{status="error"} 1
tuplebatch_chunk_sends_total{status="success"} 1
`
	assert.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(sends), "tuplebatch_chunk_sends_total"))
}

func TestResultLabel(t *testing.T) {
	tests := []struct {
		name     string
		result   batch.BatchResult
		expected string
	}{
		{"complete", batch.BatchResult{TotalChunks: 1, SuccessfulChunks: 1, Outcomes: []batch.ChunkOutcome{{}}}, metrics.ResultComplete},
		{"partial", batch.BatchResult{TotalChunks: 2, SuccessfulChunks: 1, FailedChunks: 1, Outcomes: make([]batch.ChunkOutcome, 2)}, metrics.ResultPartial},
		{"failed", batch.BatchResult{TotalChunks: 1, FailedChunks: 1, Outcomes: make([]batch.ChunkOutcome, 1)}, metrics.ResultFailed},
		{"halted", batch.BatchResult{TotalChunks: 3, FailedChunks: 1, Outcomes: make([]batch.ChunkOutcome, 1)}, metrics.ResultHalted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resultLabel(tt.result))
		})
	}
}

func TestDebugInfo(t *testing.T) {
	tr := mock.NewMockTransport()
	c := newTestClient(t, tr, nil)
	c.RegisterHook(&TestHook{name: "capture"})

	c.EnableDebugMode()
	assert.True(t, c.IsDebugMode())

	_, err := c.WriteTuples(context.Background(), testutil.BuildKeys(2), nil)
	require.NoError(t, err)

	info := c.GetDebugInfo()
	assert.Equal(t, Version, info["version"])
	assert.Equal(t, true, info["debugMode"])
	assert.Equal(t, []string{"capture"}, info["hooks"])

	transportInfo := info["transport"].(map[string]interface{})
	assert.Equal(t, int64(1), transportInfo["totalRequests"])
	assert.Equal(t, int64(2), transportInfo["operationsSent"])

	assert.Contains(t, c.DumpDebugInfoJSON(), `"maxOperationsPerRequest": 100`)

	c.DisableDebugMode()
	assert.False(t, c.IsDebugMode())
}
