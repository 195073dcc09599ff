package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dan-strohschein/tuplebatch/client"
	"github.com/dan-strohschein/tuplebatch/config"
	"github.com/dan-strohschein/tuplebatch/internal/metrics"
	"github.com/dan-strohschein/tuplebatch/internal/telemetry"
	"github.com/dan-strohschein/tuplebatch/logging"
	"github.com/dan-strohschein/tuplebatch/transport"
	"github.com/dan-strohschein/tuplebatch/transport/rest"
)

// newTransport builds the transport for write and replay. Tests swap it.
var newTransport = func(cfg rest.Config) (transport.Transport, error) {
	tr, err := rest.New(cfg)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// newTracerProvider builds the span exporter pipeline. Tests swap it.
var newTracerProvider = telemetry.Init

// tracingShutdownTimeout bounds the final span flush.
const tracingShutdownTimeout = 5 * time.Second

// app carries the state shared by every command once the root pre-run has
// loaded the configuration.
type app struct {
	configPath string
	envFile    string
	logLevel   string

	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
	tracing   *telemetry.Provider
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tuplebatch",
		Short: "Chunked, concurrent, retrying relationship tuple writes",
		Long: `tuplebatch writes relationship tuples to an authorization store.

Operations are read from a JSON-lines file, split into chunks no larger than
the server accepts per request, and sent with bounded parallelism and
per-chunk retries. Chunks that fail, or are never sent because the batch
stopped early, can be spooled locally and replayed later.

Environment variables prefixed with TUPLEBATCH_ override the config file.`,
		Version:       client.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.flushMetrics()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (YAML)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "env file to load (default: .env when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")

	root.AddCommand(
		newWriteCmd(a),
		newReplayCmd(a),
		newDeadLetterCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads the env file, the config file and the environment overrides,
// in that order, then builds the logger and metrics registry.
func (a *app) load() error {
	if err := config.LoadEnvFile(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if _, err := cfg.ApplyEnv(nil); err != nil {
		return errors.Wrap(err, "invalid environment override")
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	a.logger = logging.New(cfg.Logging.Level, stderr)
	a.logger.Debug("configuration loaded", cfg.Summary()...)

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.collector = metrics.NewCollector(a.registry, a.logger)
	}
	return nil
}

// flushMetrics writes the registry to the configured textfile.
func (a *app) flushMetrics() error {
	if a.registry == nil || a.cfg.Metrics.TextfilePath == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.cfg.Metrics.TextfilePath, a.registry); err != nil {
		return errors.Wrapf(err, "write metrics to %s", a.cfg.Metrics.TextfilePath)
	}
	a.logger.Debug("metrics written", zap.String("path", a.cfg.Metrics.TextfilePath))
	return nil
}

// newClient builds a client over the configured transport. sink may be nil.
func (a *app) newClient(sink client.FailureSink) (*client.Client, error) {
	if err := a.cfg.ValidateAPI(); err != nil {
		return nil, err
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	tr, err := newTransport(a.cfg.RESTConfig(a.logger))
	if err != nil {
		return nil, errors.Wrap(err, "create transport")
	}

	opts := a.cfg.ClientOptions(a.logger)
	opts.Metrics = a.collector
	opts.FailureSink = sink
	c, err := client.NewClient(tr, &opts)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}

	if a.cfg.Client.LogAttempts {
		c.RegisterHook(client.NewLoggingHook(a.logger, true, true))
	}
	if a.cfg.Tracing.Enabled {
		tracer, err := a.tracer()
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.RegisterHook(client.NewTracingHook(a.cfg.Tracing.ServiceName, tracer))
	}
	return c, nil
}

// tracer starts the tracer provider on first use.
func (a *app) tracer() (trace.Tracer, error) {
	if a.tracing == nil {
		p, err := newTracerProvider(context.Background(), a.cfg.TelemetryConfig(), a.logger)
		if err != nil {
			return nil, errors.Wrap(err, "start tracing")
		}
		a.tracing = p
	}
	return a.tracing.Tracer("github.com/dan-strohschein/tuplebatch"), nil
}

// close flushes spans still buffered by the tracer provider. It runs after
// every command, including failed ones.
func (a *app) close() {
	if a.tracing == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
	defer cancel()
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to flush traces", zap.Error(err))
	}
	a.tracing = nil
}
