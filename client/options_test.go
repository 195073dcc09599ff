package client

import (
	"errors"
	"testing"

	"github.com/dan-strohschein/tuplebatch/batch"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.MaxOperationsPerRequest != 100 {
		t.Errorf("expected MaxOperationsPerRequest=100, got %d", opts.MaxOperationsPerRequest)
	}

	if opts.DebugMode != false {
		t.Errorf("expected DebugMode=false, got %v", opts.DebugMode)
	}

	if opts.LogLevel != "INFO" {
		t.Errorf("expected LogLevel=INFO, got %s", opts.LogLevel)
	}

	if opts.Batch.MaxOperationsPerChunk != batch.DefaultMaxOperationsPerChunk {
		t.Errorf("expected default chunk size, got %d", opts.Batch.MaxOperationsPerChunk)
	}

	if err := opts.Validate(); err != nil {
		t.Errorf("default options should be valid: %v", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientOptions)
		code   string
	}{
		{"zero request limit", func(o *ClientOptions) { o.MaxOperationsPerRequest = 0 }, ErrCodeInvalidOptions},
		{"chunk above request limit", func(o *ClientOptions) { o.Batch.MaxOperationsPerChunk = 101 }, batch.ErrCodeInvalidChunkSize},
		{"zero chunk size", func(o *ClientOptions) { o.Batch.MaxOperationsPerChunk = 0 }, batch.ErrCodeInvalidChunkSize},
		{"zero parallelism", func(o *ClientOptions) { o.Batch.MaxParallelRequests = 0 }, batch.ErrCodeInvalidParallelism},
		{"negative retries", func(o *ClientOptions) { o.Batch.MaxRetries = -1 }, batch.ErrCodeInvalidRetries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)

			err := opts.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}

			var se *StateError
			var ce *batch.ConfigError
			switch {
			case errors.As(err, &se):
				if se.Code != tt.code {
					t.Errorf("expected code %s, got %s", tt.code, se.Code)
				}
			case errors.As(err, &ce):
				if ce.Code != tt.code {
					t.Errorf("expected code %s, got %s", tt.code, ce.Code)
				}
			default:
				t.Errorf("unexpected error type %T", err)
			}
		})
	}
}
