// Package mock provides an in-memory Transport whose failures and timing can
// be scripted per chunk.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dan-strohschein/tuplebatch/protocol"
	"github.com/dan-strohschein/tuplebatch/transport"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

// MockTransport implements transport.Transport for testing
type MockTransport struct {
	// Behavior configuration
	sendErr   error
	script    map[int][]error
	sendFunc  func(ctx context.Context, chunk tuple.Chunk) error
	healthy   bool
	sendDelay time.Duration
	gate      <-chan struct{}

	// Call tracking
	sendCalls   atomic.Int32
	closeCalls  atomic.Int32
	attempts    map[int]int
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	// Metrics
	metrics     mockMetrics
	mu          sync.RWMutex
	closed      bool
	sendHistory []tuple.Chunk
}

type mockMetrics struct {
	totalRequests      atomic.Int64
	totalErrors        atomic.Int64
	operationsSent     atomic.Int64
	healthChecksPassed atomic.Int64
	healthChecksFailed atomic.Int64
	latencySum         atomic.Int64
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		healthy:     true,
		script:      make(map[int][]error),
		attempts:    make(map[int]int),
		sendHistory: make([]tuple.Chunk, 0),
	}
}

// WithSendError configures the transport to return an error on every send
func (m *MockTransport) WithSendError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
	return m
}

// WithChunkErrors scripts the outcome of successive attempts on the chunk with
// the given index: attempt n returns errs[n-1]. A nil entry, or any attempt
// past the end of the script, succeeds.
func (m *MockTransport) WithChunkErrors(index int, errs ...error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script[index] = errs
	return m
}

// WithSendFunc delegates every send to fn after delays and gating.
func (m *MockTransport) WithSendFunc(fn func(ctx context.Context, chunk tuple.Chunk) error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendFunc = fn
	return m
}

// WithHealthy configures the health status
func (m *MockTransport) WithHealthy(healthy bool) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	return m
}

// WithSendDelay adds a delay to SendChunk operations
func (m *MockTransport) WithSendDelay(delay time.Duration) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendDelay = delay
	return m
}

// WithGate blocks every send until gate is closed or receives a value.
func (m *MockTransport) WithGate(gate <-chan struct{}) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
	return m
}

// SendChunk implements transport.Transport
func (m *MockTransport) SendChunk(ctx context.Context, chunk tuple.Chunk) error {
	m.sendCalls.Add(1)
	m.metrics.totalRequests.Add(1)

	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		max := m.maxInFlight.Load()
		if n <= max || m.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return protocol.ClosedError()
	}

	m.attempts[chunk.Index]++
	attempt := m.attempts[chunk.Index]
	delay := m.sendDelay
	gate := m.gate
	sendFunc := m.sendFunc
	sendErr := m.sendErr
	if script, ok := m.script[chunk.Index]; ok && attempt <= len(script) {
		sendErr = script[attempt-1]
	}
	m.mu.Unlock()

	start := time.Now()
	defer func() { m.metrics.latencySum.Add(int64(time.Since(start))) }()

	if gate != nil {
		select {
		case <-ctx.Done():
			m.metrics.totalErrors.Add(1)
			return ctx.Err()
		case <-gate:
		}
	}

	// Apply delay if configured
	if delay > 0 {
		select {
		case <-ctx.Done():
			m.metrics.totalErrors.Add(1)
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if sendFunc != nil && sendErr == nil {
		sendErr = sendFunc(ctx, chunk)
	}

	if sendErr != nil {
		m.metrics.totalErrors.Add(1)
		return sendErr
	}

	// Record send
	m.mu.Lock()
	m.sendHistory = append(m.sendHistory, chunk)
	m.mu.Unlock()

	m.metrics.operationsSent.Add(int64(chunk.Len()))
	return nil
}

// Close implements transport.Transport
func (m *MockTransport) Close() error {
	m.closeCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsHealthy implements transport.Transport
func (m *MockTransport) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.healthy {
		m.metrics.healthChecksPassed.Add(1)
	} else {
		m.metrics.healthChecksFailed.Add(1)
	}

	return m.healthy
}

// GetMetrics implements transport.Transport
func (m *MockTransport) GetMetrics() transport.Metrics {
	totalReqs := m.metrics.totalRequests.Load()
	avgLatency := time.Duration(0)
	if totalReqs > 0 {
		avgLatency = time.Duration(m.metrics.latencySum.Load() / totalReqs)
	}

	return transport.Metrics{
		TotalRequests:      totalReqs,
		TotalErrors:        m.metrics.totalErrors.Load(),
		AverageLatency:     avgLatency,
		OperationsSent:     m.metrics.operationsSent.Load(),
		InFlight:           int(m.inFlight.Load()),
		HealthChecksPassed: m.metrics.healthChecksPassed.Load(),
		HealthChecksFailed: m.metrics.healthChecksFailed.Load(),
	}
}

// GetSendCallCount returns the number of times SendChunk was called
func (m *MockTransport) GetSendCallCount() int {
	return int(m.sendCalls.Load())
}

// GetAttemptCount returns the number of sends made for the chunk with the given index
func (m *MockTransport) GetAttemptCount(index int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts[index]
}

// GetMaxInFlight returns the highest number of concurrent sends observed
func (m *MockTransport) GetMaxInFlight() int {
	return int(m.maxInFlight.Load())
}

// GetCloseCallCount returns the number of times Close was called
func (m *MockTransport) GetCloseCallCount() int {
	return int(m.closeCalls.Load())
}

// GetSendHistory returns every chunk delivered successfully, in completion order
func (m *MockTransport) GetSendHistory() []tuple.Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modifications
	history := make([]tuple.Chunk, len(m.sendHistory))
	copy(history, m.sendHistory)
	return history
}

// Reset clears all state and call counts
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sendErr = nil
	m.script = make(map[int][]error)
	m.sendFunc = nil
	m.healthy = true
	m.closed = false
	m.sendDelay = 0
	m.gate = nil

	m.sendCalls.Store(0)
	m.closeCalls.Store(0)
	m.attempts = make(map[int]int)
	m.maxInFlight.Store(0)

	m.metrics.totalRequests.Store(0)
	m.metrics.totalErrors.Store(0)
	m.metrics.operationsSent.Store(0)
	m.metrics.healthChecksPassed.Store(0)
	m.metrics.healthChecksFailed.Store(0)
	m.metrics.latencySum.Store(0)

	m.sendHistory = make([]tuple.Chunk, 0)
}

// IsClosed returns whether the transport has been closed
func (m *MockTransport) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var _ transport.Transport = (*MockTransport)(nil)
