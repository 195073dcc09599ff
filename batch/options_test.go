package batch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 100, opts.MaxOperationsPerChunk)
	assert.Equal(t, 1, opts.MaxParallelRequests)
	assert.Equal(t, 0, opts.MaxRetries)
	assert.Equal(t, time.Second, opts.RetryDelay)
	assert.False(t, opts.StopOnFirstError)
	assert.NoError(t, opts.Validate())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		code   string
	}{
		{"zero chunk size", func(o *Options) { o.MaxOperationsPerChunk = 0 }, ErrCodeInvalidChunkSize},
		{"negative chunk size", func(o *Options) { o.MaxOperationsPerChunk = -5 }, ErrCodeInvalidChunkSize},
		{"zero parallelism", func(o *Options) { o.MaxParallelRequests = 0 }, ErrCodeInvalidParallelism},
		{"negative retries", func(o *Options) { o.MaxRetries = -1 }, ErrCodeInvalidRetries},
		{"negative delay", func(o *Options) { o.RetryDelay = -time.Millisecond }, ErrCodeInvalidRetryDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)

			err := opts.Validate()
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.code, cfgErr.Code)
			assert.Equal(t, "CONFIG_ERROR", cfgErr.Type)
			assert.Contains(t, cfgErr.FormatError(true), `"option"`)
		})
	}
}

func TestOptionsBackoff(t *testing.T) {
	opts := DefaultOptions()
	opts.RetryDelay = 250 * time.Millisecond
	assert.Equal(t, 250*time.Millisecond, opts.backoff().Delay(3))

	opts.Backoff = ExponentialBackoff{Initial: time.Millisecond, Multiplier: 2}
	assert.Equal(t, 4*time.Millisecond, opts.backoff().Delay(3))
}
