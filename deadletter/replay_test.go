package deadletter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/tuplebatch/batch"
	"github.com/dan-strohschein/tuplebatch/testutil"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	failed := []batch.ChunkError{
		{ChunkIndex: 0, Chunk: chunkAt(0, 1), Err: testutil.RetryableError("reset")},
		{ChunkIndex: 1, Chunk: chunkAt(1, 1), Err: testutil.PermanentError("bad")},
	}
	require.NoError(t, s.Record(context.Background(), "b1", failed, []tuple.Chunk{chunkAt(2, 1)}))
	require.NoError(t, s.Record(context.Background(), "b2", nil, []tuple.Chunk{chunkAt(0, 1)}))
}

func TestReplayDropsSuccesses(t *testing.T) {
	s := openStore(t)
	seed(t, s)

	var seen []string
	stats, err := s.Replay(context.Background(), ReplayOptions{}, func(ctx context.Context, e Entry) error {
		seen = append(seen, e.BatchID)
		if e.BatchID == "b1" && e.ChunkIndex == 1 {
			return errors.New("still bad")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Replayed: 3, Failed: 1}, stats)
	assert.Equal(t, []string{"b1", "b1", "b1", "b2"}, seen)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].ChunkIndex)
}

func TestReplayOptions(t *testing.T) {
	t.Run("retryable only", func(t *testing.T) {
		s := openStore(t)
		seed(t, s)

		stats, err := s.Replay(context.Background(), ReplayOptions{RetryableOnly: true}, func(context.Context, Entry) error {
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, ReplayStats{Replayed: 3, Skipped: 1}, stats)
	})

	t.Run("single batch", func(t *testing.T) {
		s := openStore(t)
		seed(t, s)

		stats, err := s.Replay(context.Background(), ReplayOptions{BatchID: "b2"}, func(context.Context, Entry) error {
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Replayed)

		n, err := s.Count()
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("stop on first error", func(t *testing.T) {
		s := openStore(t)
		seed(t, s)

		calls := 0
		stats, err := s.Replay(context.Background(), ReplayOptions{StopOnFirstError: true}, func(context.Context, Entry) error {
			calls++
			return errors.New("down")
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, stats.Failed)
	})
}

func TestReplayCancelled(t *testing.T) {
	s := openStore(t)
	seed(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	stats, err := s.Replay(ctx, ReplayOptions{}, func(context.Context, Entry) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Replayed)
}
