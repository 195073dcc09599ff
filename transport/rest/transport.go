// Package rest implements transport.Transport over the HTTP write endpoint
// POST {api_url}/stores/{store_id}/write using fasthttp.
package rest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	crdberrors "github.com/cockroachdb/errors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dan-strohschein/tuplebatch/protocol"
	"github.com/dan-strohschein/tuplebatch/transport"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

// Transport delivers chunks as JSON write requests
type Transport struct {
	cfg     Config
	url     string
	codec   protocol.Codec
	client  *fasthttp.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	params  protocol.WriteParams

	closed              atomic.Bool
	consecutiveFailures atomic.Int32
	inFlight            atomic.Int32
	metrics             transportMetrics
}

// transportMetrics tracks transport performance
type transportMetrics struct {
	totalRequests      atomic.Int64
	totalErrors        atomic.Int64
	bytesSent          atomic.Int64
	bytesReceived      atomic.Int64
	operationsSent     atomic.Int64
	healthChecksPassed atomic.Int64
	healthChecksFailed atomic.Int64
	latencySum         atomic.Int64 // nanoseconds
	lastError          error
	lastErrorTime      time.Time
	mu                 sync.RWMutex
}

// New creates a REST transport
func New(cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, crdberrors.Wrap(err, "invalid rest transport config")
	}
	cfg.applyDefaults()

	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		cfg:   cfg,
		url:   cfg.writeURL(),
		codec: protocol.NewCodec(),
		client: &fasthttp.Client{
			Name:            cfg.UserAgent,
			TLSConfig:       tlsConfig,
			MaxConnsPerHost: cfg.MaxConnsPerHost,
			ReadTimeout:     cfg.Timeout,
			WriteTimeout:    cfg.Timeout,
			Dial:            cfg.Dial,
		},
		logger: cfg.Logger.With(zap.String("component", "rest_transport"), zap.String("store_id", cfg.StoreID)),
		params: protocol.WriteParams{
			AuthorizationModelID: cfg.AuthorizationModelID,
			OnDuplicateWrites:    cfg.OnDuplicateWrites,
			OnMissingDeletes:     cfg.OnMissingDeletes,
		},
	}
	if cfg.RequestsPerSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return t, nil
}

// SendChunk implements transport.Transport
func (t *Transport) SendChunk(ctx context.Context, chunk tuple.Chunk) error {
	if t.closed.Load() {
		return protocol.ClosedError()
	}

	body, err := t.codec.EncodeWrite(chunk, t.params)
	if err != nil {
		return t.fail(protocol.ProtocolError("failed to encode write request", err))
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(t.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if t.cfg.APIToken != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+t.cfg.APIToken)
	}
	req.SetBodyRaw(body)

	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	t.metrics.totalRequests.Add(1)
	t.inFlight.Add(1)
	err = t.client.DoDeadline(req, resp, deadline)
	t.inFlight.Add(-1)
	t.metrics.latencySum.Add(int64(time.Since(start)))
	t.metrics.bytesSent.Add(int64(len(body)))

	if err != nil {
		t.consecutiveFailures.Add(1)
		return t.fail(classifyDoError(err))
	}
	t.consecutiveFailures.Store(0)

	respBody := resp.Body()
	t.metrics.bytesReceived.Add(int64(len(respBody)))

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		te := protocol.FromHTTPStatus(status, respBody)
		t.logger.Debug("write rejected",
			zap.Int("chunk", chunk.Index),
			zap.Int("status", status),
			zap.Bool("retryable", te.Retryable),
			zap.String("message", te.Message),
		)
		return t.fail(te)
	}

	t.metrics.operationsSent.Add(int64(chunk.Len()))
	return nil
}

// classifyDoError converts a fasthttp client error into a transport error.
func classifyDoError(err error) *protocol.TransportError {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
		return protocol.TimeoutError("write request timed out", map[string]interface{}{"error": err.Error()})
	}
	if te := classifyTLSError(err); te != nil {
		return te
	}
	return protocol.NetworkError("write request failed", err)
}

func (t *Transport) fail(te *protocol.TransportError) error {
	t.metrics.totalErrors.Add(1)
	t.metrics.mu.Lock()
	t.metrics.lastError = te
	t.metrics.lastErrorTime = time.Now()
	t.metrics.mu.Unlock()
	return te
}

// Close implements transport.Transport
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.client.CloseIdleConnections()
	t.logger.Debug("transport closed")
	return nil
}

// IsHealthy implements transport.Transport
func (t *Transport) IsHealthy() bool {
	healthy := !t.closed.Load() && int(t.consecutiveFailures.Load()) < t.cfg.MaxConsecutiveFailures
	if healthy {
		t.metrics.healthChecksPassed.Add(1)
	} else {
		t.metrics.healthChecksFailed.Add(1)
	}
	return healthy
}

// GetMetrics implements transport.Transport
func (t *Transport) GetMetrics() transport.Metrics {
	t.metrics.mu.RLock()
	lastErr := t.metrics.lastError
	lastErrTime := t.metrics.lastErrorTime
	t.metrics.mu.RUnlock()

	totalReqs := t.metrics.totalRequests.Load()
	avgLatency := time.Duration(0)
	if totalReqs > 0 {
		avgLatency = time.Duration(t.metrics.latencySum.Load() / totalReqs)
	}

	return transport.Metrics{
		TotalRequests:      totalReqs,
		TotalErrors:        t.metrics.totalErrors.Load(),
		AverageLatency:     avgLatency,
		LastError:          lastErr,
		LastErrorTime:      lastErrTime,
		BytesSent:          t.metrics.bytesSent.Load(),
		BytesReceived:      t.metrics.bytesReceived.Load(),
		OperationsSent:     t.metrics.operationsSent.Load(),
		InFlight:           int(t.inFlight.Load()),
		HealthChecksPassed: t.metrics.healthChecksPassed.Load(),
		HealthChecksFailed: t.metrics.healthChecksFailed.Load(),
	}
}

// String describes the endpoint.
func (t *Transport) String() string {
	return fmt.Sprintf("rest(%s)", t.url)
}

var _ transport.Transport = (*Transport)(nil)
