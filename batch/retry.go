package batch

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/dan-strohschein/tuplebatch/protocol"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

// SendFunc delivers one chunk. Failures that may succeed on a later attempt
// must be marked retryable (see protocol.IsRetryable).
type SendFunc func(ctx context.Context, chunk tuple.Chunk) error

// Backoff computes the pause before a retry. attempt is the 1-based retry
// number: the delay before the second send is Delay(1).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same duration before every retry.
type FixedBackoff time.Duration

// Delay implements Backoff.
func (b FixedBackoff) Delay(int) time.Duration {
	return time.Duration(b)
}

// DefaultMaxBackoff caps ExponentialBackoff when Max is not set.
const DefaultMaxBackoff = 5 * time.Minute

// ExponentialBackoff grows the delay by Multiplier per retry, capped at Max
// (DefaultMaxBackoff when zero), with optional ±25% jitter.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     bool
}

// Delay implements Backoff.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	multiplier := b.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	ceiling := b.Max
	if ceiling <= 0 {
		ceiling = DefaultMaxBackoff
	}

	// Pow overflows to +Inf for large attempts; the cap keeps the
	// Duration conversion in range.
	delay := float64(b.Initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(ceiling) {
		delay = float64(ceiling)
	}
	if b.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < float64(b.Initial) {
		delay = float64(b.Initial)
	}
	return time.Duration(delay)
}

// RetryPolicy bounds the attempts made for one chunk.
type RetryPolicy struct {
	// MaxRetries is the number of attempts allowed after the first.
	MaxRetries int

	// Backoff computes the pause between attempts. Nil means no pause.
	Backoff Backoff

	Logger *zap.Logger

	// OnRetry is called before each retry is scheduled.
	OnRetry func(chunk tuple.Chunk, attempt int, err error, delay time.Duration)
}

// ExecuteWithRetry sends chunk, retrying retryable failures up to
// policy.MaxRetries more times. A success on any attempt returns at once. A
// non-retryable failure stops immediately. Otherwise the last error is
// reported once attempts are exhausted.
//
// The attempt number is available to send through AttemptFromContext.
func ExecuteWithRetry(ctx context.Context, chunk tuple.Chunk, send SendFunc, policy RetryPolicy) ChunkOutcome {
	logger := policy.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	start := time.Now()
	outcome := ChunkOutcome{Index: chunk.Index, Operations: chunk.Len()}

	for attempt := 1; ; attempt++ {
		outcome.Attempts = attempt
		err := send(withAttempt(ctx, attempt), chunk)
		if err == nil {
			if attempt > 1 {
				logger.Info("chunk succeeded after retry",
					zap.Int("chunk", chunk.Index),
					zap.Int("attempt", attempt),
				)
			}
			outcome.Err = nil
			break
		}
		outcome.Err = err

		if !protocol.IsRetryable(err) {
			logger.Debug("chunk failed with non-retryable error",
				zap.Int("chunk", chunk.Index),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			break
		}

		if attempt > policy.MaxRetries {
			if policy.MaxRetries > 0 {
				logger.Warn("chunk retries exhausted",
					zap.Int("chunk", chunk.Index),
					zap.Int("attempts", attempt),
					zap.Error(err),
				)
			}
			break
		}

		var delay time.Duration
		if policy.Backoff != nil {
			delay = policy.Backoff.Delay(attempt)
		}

		logger.Debug("retrying chunk",
			zap.Int("chunk", chunk.Index),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", policy.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if policy.OnRetry != nil {
			policy.OnRetry(chunk, attempt, err, delay)
		}

		if err := sleep(ctx, delay); err != nil {
			outcome.Err = errors.Join(outcome.Err, err)
			break
		}
	}

	outcome.Duration = time.Since(start)
	return outcome
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
