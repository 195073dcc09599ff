// Package telemetry installs the OpenTelemetry tracer provider that the
// tracing hook reports send attempts to.
package telemetry

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultServiceName is reported when Config.ServiceName is empty.
const DefaultServiceName = "tuplebatch"

// Config selects the OTLP collector spans are exported to.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Endpoint is the collector's host:port. Empty uses the exporter
	// default, which honors OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string
	Insecure bool

	// SampleRate is the fraction of root spans kept, in (0, 1].
	// Zero or less keeps everything.
	SampleRate float64
}

// Provider owns the SDK tracer provider and its exporter.
type Provider struct {
	tp     *sdktrace.TracerProvider
	logger *zap.Logger
}

// Init creates an OTLP gRPC exporter and a provider over it. The exporter
// connects lazily, so Init does not fail when the collector is down.
func Init(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	var opts []otlptracegrpc.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create trace exporter")
	}
	return NewProvider(cfg, exporter, logger)
}

// NewProvider builds a provider that batches spans to exporter.
func NewProvider(cfg Config, exporter sdktrace.SpanExporter, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create otel resource")
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)

	logger.Debug("tracing initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("service_name", name),
		zap.Float64("sample_rate", cfg.SampleRate))

	return &Provider{tp: tp, logger: logger}, nil
}

// Tracer returns the named tracer of this provider.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes buffered spans and closes the exporter. It is safe on a
// nil Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown tracer provider")
	}
	return nil
}
