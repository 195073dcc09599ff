package batch

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dan-strohschein/tuplebatch/tuple"
)

// Dispatcher sends chunks with at most Parallelism retry sequences in flight.
type Dispatcher struct {
	Parallelism      int
	StopOnFirstError bool
	Policy           RetryPolicy
	Logger           *zap.Logger

	// OnChunkComplete is called once per terminal outcome, possibly
	// concurrently.
	OnChunkComplete func(ChunkOutcome)
}

// Dispatch runs every chunk through the retry policy and returns their
// outcomes ordered by chunk index.
//
// With StopOnFirstError set, no chunk is admitted once a failure has been
// observed; chunks already in flight finish, and chunks never admitted are
// absent from the result. Cancelling ctx halts admission the same way.
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []tuple.Chunk, send SendFunc) []ChunkOutcome {
	if len(chunks) == 0 {
		return nil
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	parallelism := max(d.Parallelism, 1)

	sem := semaphore.NewWeighted(int64(parallelism))
	slots := make([]ChunkOutcome, len(chunks))
	done := make([]bool, len(chunks))
	var halted atomic.Bool
	var g errgroup.Group

	admitted := 0
	for i, chunk := range chunks {
		if halted.Load() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		// A failure or cancellation may have landed while waiting for a slot.
		if halted.Load() || ctx.Err() != nil {
			sem.Release(1)
			break
		}

		admitted++
		g.Go(func() error {
			defer sem.Release(1)

			outcome := ExecuteWithRetry(ctx, chunk, send, d.Policy)
			slots[i] = outcome
			done[i] = true

			if !outcome.Succeeded() && d.StopOnFirstError {
				halted.Store(true)
			}
			if d.OnChunkComplete != nil {
				d.OnChunkComplete(outcome)
			}
			return nil
		})
	}

	_ = g.Wait()

	if admitted < len(chunks) {
		logger.Info("chunk admission halted",
			zap.Int("admitted", admitted),
			zap.Int("planned", len(chunks)),
			zap.Bool("stop_on_first_error", halted.Load()),
			zap.NamedError("context", ctx.Err()),
		)
	}

	outcomes := make([]ChunkOutcome, 0, admitted)
	for i := range slots {
		if done[i] {
			outcomes = append(outcomes, slots[i])
		}
	}
	return outcomes
}
