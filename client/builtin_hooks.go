package client

import (
	"context"
	"strconv"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dan-strohschein/tuplebatch/internal/metrics"
	"github.com/dan-strohschein/tuplebatch/protocol"
)

// ============================================================================
// LoggingHook - Logs send attempts
// ============================================================================

// LoggingHook logs chunk send attempts with configurable detail levels.
type LoggingHook struct {
	logger       *zap.Logger
	logAttempts  bool // Log each attempt before sending
	logDurations bool // Log send times
}

// NewLoggingHook creates a new logging hook with the given logger.
func NewLoggingHook(logger *zap.Logger, logAttempts, logDurations bool) *LoggingHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingHook{
		logger:       logger,
		logAttempts:  logAttempts,
		logDurations: logDurations,
	}
}

func (h *LoggingHook) Name() string {
	return "logging"
}

func (h *LoggingHook) Before(ctx context.Context, hookCtx *HookContext) error {
	if h.logAttempts {
		h.logger.Debug("sending chunk",
			zap.String("batch_id", hookCtx.BatchID),
			zap.Int("chunk", hookCtx.ChunkIndex),
			zap.Int("attempt", hookCtx.Attempt),
			zap.Int("operations", hookCtx.Operations),
			zap.String("trace_id", hookCtx.TraceID))
	}
	return nil
}

func (h *LoggingHook) After(ctx context.Context, hookCtx *HookContext) error {
	fields := []zap.Field{
		zap.String("batch_id", hookCtx.BatchID),
		zap.Int("chunk", hookCtx.ChunkIndex),
		zap.Int("attempt", hookCtx.Attempt),
		zap.String("trace_id", hookCtx.TraceID),
	}

	if h.logDurations {
		fields = append(fields, zap.Duration("duration", hookCtx.Duration))
	}

	if hookCtx.Error != nil {
		fields = append(fields,
			zap.Bool("retryable", protocol.IsRetryable(hookCtx.Error)),
			zap.Error(hookCtx.Error))
		h.logger.Warn("chunk send failed", fields...)
	} else {
		h.logger.Debug("chunk sent", fields...)
	}

	return nil
}

// ============================================================================
// MetricsHook - Collects send metrics
// ============================================================================

// MetricsHook counts send attempts with atomic counters and, when a
// collector is set, exports them to prometheus.
type MetricsHook struct {
	TotalSends      atomic.Uint64
	TotalRetries    atomic.Uint64
	TotalOperations atomic.Uint64
	TotalErrors     atomic.Uint64
	TotalDurationNs atomic.Uint64

	collector *metrics.Collector
}

// NewMetricsHook creates a new metrics collection hook. collector may be nil.
func NewMetricsHook(collector *metrics.Collector) *MetricsHook {
	return &MetricsHook{collector: collector}
}

func (h *MetricsHook) Name() string {
	return "metrics"
}

func (h *MetricsHook) Before(ctx context.Context, hookCtx *HookContext) error {
	if h.collector != nil {
		h.collector.SendStarted(hookCtx.Attempt)
	}
	return nil
}

func (h *MetricsHook) After(ctx context.Context, hookCtx *HookContext) error {
	h.TotalSends.Add(1)
	h.TotalOperations.Add(uint64(hookCtx.Operations))
	h.TotalDurationNs.Add(uint64(hookCtx.Duration.Nanoseconds()))
	if hookCtx.Attempt > 1 {
		h.TotalRetries.Add(1)
	}

	status := metrics.StatusSuccess
	if hookCtx.Error != nil {
		h.TotalErrors.Add(1)
		status = metrics.StatusError
		if protocol.IsRetryable(hookCtx.Error) {
			status = metrics.StatusRetryableError
		}
	}

	if h.collector != nil {
		h.collector.SendFinished(status, hookCtx.Duration)
	}
	return nil
}

// GetStats returns current metrics as a map.
func (h *MetricsHook) GetStats() map[string]interface{} {
	totalSends := h.TotalSends.Load()
	totalDur := h.TotalDurationNs.Load()

	avgDuration := int64(0)
	if totalSends > 0 {
		avgDuration = int64(totalDur / totalSends)
	}

	return map[string]interface{}{
		"total_sends":       totalSends,
		"total_retries":     h.TotalRetries.Load(),
		"total_operations":  h.TotalOperations.Load(),
		"total_errors":      h.TotalErrors.Load(),
		"total_duration_ns": totalDur,
		"avg_duration_ns":   avgDuration,
		"avg_duration_ms":   float64(avgDuration) / 1_000_000,
	}
}

// Reset clears all counters. The prometheus collector is not affected.
func (h *MetricsHook) Reset() {
	h.TotalSends.Store(0)
	h.TotalRetries.Store(0)
	h.TotalOperations.Store(0)
	h.TotalErrors.Store(0)
	h.TotalDurationNs.Store(0)
}

// ============================================================================
// TracingHook - OpenTelemetry spans per send attempt
// ============================================================================

const traceSpanKey = "trace_span"

// TracingHook records one OpenTelemetry span per chunk send attempt.
type TracingHook struct {
	tracer trace.Tracer
}

// NewTracingHook creates a tracing hook. A nil tracer uses the global
// provider's tracer named serviceName; spans are dropped unless a provider
// with an exporter has been installed (see internal/telemetry).
func NewTracingHook(serviceName string, tracer trace.Tracer) *TracingHook {
	if tracer == nil {
		tracer = otel.Tracer(serviceName)
	}
	return &TracingHook{tracer: tracer}
}

func (h *TracingHook) Name() string {
	return "tracing"
}

func (h *TracingHook) Before(ctx context.Context, hookCtx *HookContext) error {
	spanCtx, span := h.tracer.Start(ctx, "tuplebatch.send_chunk",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(hookCtx.StartTime),
		trace.WithAttributes(
			attribute.String("tuplebatch.batch_id", hookCtx.BatchID),
			attribute.Int("tuplebatch.chunk.index", hookCtx.ChunkIndex),
			attribute.Int("tuplebatch.chunk.attempt", hookCtx.Attempt),
			attribute.Int("tuplebatch.chunk.operations", hookCtx.Operations),
			attribute.Int("tuplebatch.chunk.writes", hookCtx.Writes),
			attribute.Int("tuplebatch.chunk.deletes", hookCtx.Deletes),
			attribute.String("tuplebatch.chunk.fingerprint", strconv.FormatUint(hookCtx.Fingerprint, 16)),
			attribute.Bool("tuplebatch.transactional", hookCtx.Transactional),
			attribute.String("tuplebatch.trace_id", hookCtx.TraceID),
		))
	hookCtx.Metadata[traceSpanKey] = span
	hookCtx.SetContext(spanCtx)
	return nil
}

func (h *TracingHook) After(ctx context.Context, hookCtx *HookContext) error {
	span, ok := hookCtx.Metadata[traceSpanKey].(trace.Span)
	if !ok {
		return nil
	}

	if hookCtx.Error != nil {
		span.SetAttributes(
			attribute.String("tuplebatch.error.code", protocol.CodeOf(hookCtx.Error).String()),
			attribute.Bool("tuplebatch.error.retryable", protocol.IsRetryable(hookCtx.Error)),
		)
		span.RecordError(hookCtx.Error)
		span.SetStatus(codes.Error, hookCtx.Error.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(hookCtx.StartTime.Add(hookCtx.Duration)))
	return nil
}

var (
	_ Hook = (*LoggingHook)(nil)
	_ Hook = (*MetricsHook)(nil)
	_ Hook = (*TracingHook)(nil)
)
