// Package transport defines the transport layer abstraction used to deliver
// chunks of tuple operations to an authorization store.
package transport

import (
	"context"
	"time"

	"github.com/dan-strohschein/tuplebatch/tuple"
)

// Transport defines the interface for delivering chunks
type Transport interface {
	// SendChunk transmits one chunk as a single atomic write request.
	// Failures are returned as *protocol.TransportError so callers can
	// tell retryable failures from permanent ones.
	SendChunk(ctx context.Context, chunk tuple.Chunk) error

	// Close releases the transport's resources
	Close() error

	// IsHealthy returns whether the transport is healthy
	IsHealthy() bool

	// GetMetrics returns transport performance metrics
	GetMetrics() Metrics
}

// Metrics contains performance and health metrics
type Metrics struct {
	// TotalRequests is the total number of requests sent
	TotalRequests int64

	// TotalErrors is the total number of errors encountered
	TotalErrors int64

	// AverageLatency is the average round-trip latency
	AverageLatency time.Duration

	// LastError is the most recent error encountered
	LastError error

	// LastErrorTime is when the last error occurred
	LastErrorTime time.Time

	// BytesSent is the total bytes sent
	BytesSent int64

	// BytesReceived is the total bytes received
	BytesReceived int64

	// OperationsSent is the total number of tuple operations delivered
	OperationsSent int64

	// InFlight is the number of requests currently outstanding
	InFlight int

	// HealthChecksPassed is the number of successful health checks
	HealthChecksPassed int64

	// HealthChecksFailed is the number of failed health checks
	HealthChecksFailed int64
}

// Factory creates new transport instances
type Factory func(ctx context.Context) (Transport, error)
