package deadletter

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ReplayFunc re-submits one spooled entry. A nil return means the entry's
// operations were applied and the entry can be dropped.
type ReplayFunc func(ctx context.Context, e Entry) error

// ReplayStats summarizes a Replay run.
type ReplayStats struct {
	Replayed int
	Failed   int
	Skipped  int
}

// ReplayOptions filters and bounds a Replay run.
type ReplayOptions struct {
	// BatchID restricts the replay to one batch when set.
	BatchID string

	// RetryableOnly skips failed entries whose last error was permanent.
	// Entries that were never attempted are always replayed.
	RetryableOnly bool

	// StopOnFirstError ends the run at the first entry that fails again.
	StopOnFirstError bool
}

// Replay re-submits spooled entries in key order, deleting each one that
// replays cleanly. Entries that fail again stay in the spool. The error is
// non-nil only for storage failures or a cancelled ctx.
func (s *Store) Replay(ctx context.Context, opts ReplayOptions, replay ReplayFunc) (ReplayStats, error) {
	var stats ReplayStats

	var (
		entries []Entry
		err     error
	)
	if opts.BatchID != "" {
		entries, err = s.ListBatch(opts.BatchID)
	} else {
		entries, err = s.List()
	}
	if err != nil {
		return stats, err
	}

	s.logger.Info("replaying dead-letter entries", zap.Int("entries", len(entries)))

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if opts.RetryableOnly && e.Reason == ReasonFailed && !e.Retryable {
			stats.Skipped++
			continue
		}

		if err := replay(ctx, e); err != nil {
			stats.Failed++
			s.logger.Warn("dead-letter replay failed",
				zap.String("batch_id", e.BatchID),
				zap.Int("chunk", e.ChunkIndex),
				zap.Error(err))
			if opts.StopOnFirstError {
				break
			}
			continue
		}

		if err := s.Delete(e.BatchID, e.ChunkIndex); err != nil {
			return stats, errors.Wrap(err, "drop replayed entry")
		}
		stats.Replayed++
		s.logger.Debug("dead-letter entry replayed",
			zap.String("batch_id", e.BatchID),
			zap.Int("chunk", e.ChunkIndex))
	}

	s.logger.Info("dead-letter replay finished",
		zap.Int("replayed", stats.Replayed),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}
