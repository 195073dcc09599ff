package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dan-strohschein/tuplebatch/batch"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

// writeTransactional sends ops as a single request: the server applies all
// of them or none. There is no chunking and no retry. The outcome is
// reported as a one-chunk BatchResult.
func (c *Client) writeTransactional(ctx context.Context, ops tuple.OperationSet) (batch.BatchResult, error) {
	if ops.Len() > c.opts.MaxOperationsPerRequest {
		return batch.BatchResult{}, newTransactionError(ErrCodeTxTooLarge,
			fmt.Sprintf("transactional write of %d operations exceeds the limit of %d; use a non-transactional write",
				ops.Len(), c.opts.MaxOperationsPerRequest),
			map[string]interface{}{
				"operations": ops.Len(),
				"limit":      c.opts.MaxOperationsPerRequest,
			}, nil)
	}

	batchID := uuid.NewString()
	start := time.Now()
	result := batch.BatchResult{BatchID: batchID}
	if ops.Len() == 0 {
		return result, nil
	}

	chunk := tuple.Chunk{Index: 0, Operations: ops[:len(ops):len(ops)]}
	err := c.sendAttempt(batch.WithBatchID(ctx, batchID), chunk, 1, true)
	outcome := batch.ChunkOutcome{
		Index:      chunk.Index,
		Operations: chunk.Len(),
		Attempts:   1,
		Err:        err,
		Duration:   time.Since(start),
	}

	result = batch.Aggregate(ops, []tuple.Chunk{chunk}, []batch.ChunkOutcome{outcome})
	result.BatchID = batchID
	result.Duration = time.Since(start)

	if err != nil {
		c.logger.Warn("transactional write failed",
			zap.String("batch_id", batchID),
			zap.Int("operations", ops.Len()),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
	} else {
		c.logger.Info("transactional write completed",
			zap.String("batch_id", batchID),
			zap.Int("operations", ops.Len()),
			zap.Duration("duration", result.Duration))
	}

	c.finishBatch(ctx, ops, result)
	return result, nil
}
