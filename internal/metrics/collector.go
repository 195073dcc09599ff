// Package metrics provides the prometheus collector for chunk sends and
// batches. This package is internal and should not be imported by external
// projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Namespace prefixes every metric name.
const Namespace = "tuplebatch"

// Chunk send statuses.
const (
	StatusSuccess        = "success"
	StatusRetryableError = "retryable_error"
	StatusError          = "error"
)

// Operation statuses.
const (
	OpStatusSucceeded    = "succeeded"
	OpStatusFailed       = "failed"
	OpStatusNotAttempted = "not_attempted"
)

// Batch results.
const (
	ResultComplete = "complete"
	ResultPartial  = "partial"
	ResultFailed   = "failed"
	ResultHalted   = "halted"
)

// Collector records chunk and batch metrics.
type Collector struct {
	chunkSendsTotal   *prometheus.CounterVec
	chunkSendDuration prometheus.Histogram
	chunkRetriesTotal prometheus.Counter
	batchesTotal      *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec
	inflightChunks    prometheus.Gauge

	logger *zap.Logger
}

// NewCollector registers the collector's metrics with reg. A nil reg uses
// the default registerer.
func NewCollector(reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.chunkSendsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chunk_sends_total",
			Help:      "Total number of chunk send attempts",
		},
		[]string{"status"},
	)

	c.chunkSendDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "chunk_send_duration_seconds",
			Help:      "Chunk send attempt duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.chunkRetriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chunk_retries_total",
			Help:      "Total number of chunk send retries",
		},
	)

	c.batchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_total",
			Help:      "Total number of batch writes by result",
		},
		[]string{"result"},
	)

	c.operationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of tuple operations by kind and status",
		},
		[]string{"kind", "status"},
	)

	c.inflightChunks = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "inflight_chunks",
			Help:      "Number of chunk sends currently in flight",
		},
	)

	c.logger.Debug("metrics collector initialized")
	return c
}

// SendStarted marks one chunk send as in flight. attempt is 1-based.
func (c *Collector) SendStarted(attempt int) {
	c.inflightChunks.Inc()
	if attempt > 1 {
		c.chunkRetriesTotal.Inc()
	}
}

// SendFinished records the end of a chunk send started with SendStarted.
func (c *Collector) SendFinished(status string, duration time.Duration) {
	c.inflightChunks.Dec()
	c.chunkSendsTotal.WithLabelValues(status).Inc()
	c.chunkSendDuration.Observe(duration.Seconds())
}

// RecordOperations adds n operations of kind with the given status.
func (c *Collector) RecordOperations(kind, status string, n int) {
	if n <= 0 {
		return
	}
	c.operationsTotal.WithLabelValues(kind, status).Add(float64(n))
}

// RecordBatch counts a finished batch.
func (c *Collector) RecordBatch(result string) {
	c.batchesTotal.WithLabelValues(result).Inc()
}
