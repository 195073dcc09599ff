// Package testutil provides helpers shared by tuplebatch tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dan-strohschein/tuplebatch/protocol"
)

// WithTimeout creates a context with timeout for tests.
// Default timeout is 10 seconds.
func WithTimeout(t *testing.T, timeout ...time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()

	duration := 10 * time.Second
	if len(timeout) > 0 {
		duration = timeout[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	t.Cleanup(cancel)

	return ctx, cancel
}

// RetryableError returns a transient transport failure.
func RetryableError(message string) error {
	return protocol.NetworkError(message, nil)
}

// PermanentError returns a transport failure that must not be retried.
func PermanentError(message string) error {
	return protocol.ValidationError(message, nil)
}

// ObservedLogger returns a logger whose entries at or above level are
// captured for assertions.
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// WaitFor polls until condition returns true or the timeout elapses.
//
// Example:
//
//	testutil.WaitFor(t, time.Second, 5*time.Millisecond, func() bool {
//	    return tr.GetMetrics().InFlight == 2
//	})
func WaitFor(t *testing.T, timeout, interval time.Duration, condition func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}

	t.Errorf("condition not met within timeout %v", timeout)
	return false
}
