package batch

import (
	"slices"
	"time"

	"github.com/dan-strohschein/tuplebatch/tuple"
)

// ChunkOutcome is the terminal result of sending one chunk. Err is nil on
// success and holds the last observed error on failure.
type ChunkOutcome struct {
	Index      int
	Operations int
	Attempts   int
	Err        error
	Duration   time.Duration
}

// Succeeded reports whether the chunk was delivered.
func (o ChunkOutcome) Succeeded() bool {
	return o.Err == nil
}

// BatchResult is the aggregate of one BatchWrite call. Check Err or
// IsCompleteSuccess: a non-nil error from BatchWrite only ever means the
// options were invalid.
type BatchResult struct {
	BatchID          string
	TotalOperations  int
	TotalChunks      int
	SuccessfulChunks int
	FailedChunks     int

	// Errors holds one entry per failed chunk, ordered by chunk index.
	Errors []ChunkError

	// NotAttempted holds the planned chunks that were never admitted.
	NotAttempted []tuple.Chunk

	// Outcomes holds the outcome of every attempted chunk, ordered by index.
	Outcomes []ChunkOutcome

	Duration time.Duration
}

// Aggregate folds chunk outcomes into a BatchResult. Totals describe the
// whole planned batch, so a halted dispatch shows up as attempted < planned.
func Aggregate(ops tuple.OperationSet, chunks []tuple.Chunk, outcomes []ChunkOutcome) BatchResult {
	sorted := slices.Clone(outcomes)
	slices.SortStableFunc(sorted, func(a, b ChunkOutcome) int {
		return a.Index - b.Index
	})

	result := BatchResult{
		TotalOperations: len(ops),
		TotalChunks:     len(chunks),
		Outcomes:        sorted,
	}

	attempted := make(map[int]bool, len(sorted))
	for _, o := range sorted {
		attempted[o.Index] = true
		if o.Succeeded() {
			result.SuccessfulChunks++
			continue
		}
		result.FailedChunks++
		ce := ChunkError{ChunkIndex: o.Index, Err: o.Err}
		if o.Index >= 0 && o.Index < len(chunks) {
			ce.Chunk = chunks[o.Index]
		}
		result.Errors = append(result.Errors, ce)
	}

	for _, c := range chunks {
		if !attempted[c.Index] {
			result.NotAttempted = append(result.NotAttempted, c)
		}
	}
	return result
}

// Attempted returns the number of chunks that reached a terminal outcome.
func (r BatchResult) Attempted() int {
	return r.SuccessfulChunks + r.FailedChunks
}

// SuccessRate is SuccessfulChunks / TotalChunks, or 1.0 for an empty batch.
func (r BatchResult) SuccessRate() float64 {
	if r.TotalChunks == 0 {
		return 1.0
	}
	return float64(r.SuccessfulChunks) / float64(r.TotalChunks)
}

// IsCompleteSuccess reports whether every planned chunk was attempted and
// none failed.
func (r BatchResult) IsCompleteSuccess() bool {
	return r.FailedChunks == 0 && r.Attempted() == r.TotalChunks
}

// IsPartialSuccess reports whether some chunks succeeded and some failed.
func (r BatchResult) IsPartialSuccess() bool {
	return r.SuccessfulChunks > 0 && r.FailedChunks > 0
}

// Halted reports whether dispatch stopped before every chunk was attempted.
func (r BatchResult) Halted() bool {
	return r.Attempted() < r.TotalChunks
}

// Err returns nil on complete success and a *BatchError otherwise.
func (r BatchResult) Err() error {
	if r.IsCompleteSuccess() {
		return nil
	}

	code := ErrCodeBatchPartial
	switch {
	case r.FailedChunks == 0:
		code = ErrCodeBatchIncomplete
	case r.SuccessfulChunks == 0:
		code = ErrCodeBatchFailed
	}

	return &BatchError{
		Code:             code,
		Type:             "BATCH_ERROR",
		Message:          summarize(r),
		BatchID:          r.BatchID,
		TotalChunks:      r.TotalChunks,
		SuccessfulChunks: r.SuccessfulChunks,
		FailedChunks:     r.FailedChunks,
		NotAttempted:     len(r.NotAttempted),
		Errors:           r.Errors,
	}
}

// FailedOperations returns the operations of every failed chunk followed by
// those of every chunk that was never attempted, in chunk order.
func (r BatchResult) FailedOperations() []tuple.Operation {
	var ops []tuple.Operation
	for _, ce := range r.Errors {
		ops = append(ops, ce.Chunk.Operations...)
	}
	for _, c := range r.NotAttempted {
		ops = append(ops, c.Operations...)
	}
	return ops
}
