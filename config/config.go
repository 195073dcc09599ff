// Package config loads the tuplebatch command-line configuration from a YAML
// file, an optional .env file and TUPLEBATCH_* environment variables, and
// converts it into transport, batch and client options.
package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dan-strohschein/tuplebatch/batch"
	"github.com/dan-strohschein/tuplebatch/client"
	"github.com/dan-strohschein/tuplebatch/internal/telemetry"
	"github.com/dan-strohschein/tuplebatch/logging"
	"github.com/dan-strohschein/tuplebatch/transport/rest"
)

// Defaults for settings the other packages leave unset.
const (
	DefaultDeadLetterPath = "./.tuplebatch/deadletter"
	DefaultLogLevel       = "INFO"

	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Config is the full command-line configuration.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Batch      BatchConfig      `yaml:"batch"`
	Client     ClientConfig     `yaml:"client"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// Default returns a configuration carrying the library defaults.
func Default() *Config {
	bo := batch.DefaultOptions()
	return &Config{
		API: APIConfig{
			Timeout: Duration(rest.DefaultTimeout),
		},
		Batch: BatchConfig{
			ChunkSize:  bo.MaxOperationsPerChunk,
			Parallel:   bo.MaxParallelRequests,
			MaxRetries: bo.MaxRetries,
			RetryDelay: Duration(bo.RetryDelay),
			Backoff:    BackoffConfig{Mode: BackoffFixed},
		},
		Client: ClientConfig{
			MaxOperationsPerRequest: client.DefaultMaxOperationsPerRequest,
		},
		DeadLetter: DeadLetterConfig{Path: DefaultDeadLetterPath},
		Logging:    LoggingConfig{Level: DefaultLogLevel},
		Tracing:    TracingConfig{ServiceName: telemetry.DefaultServiceName, SampleRate: 1},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf("config file not found: %s", path)
		}
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}
	return cfg, nil
}

// Validate checks the settings every command depends on. The API section is
// checked separately by ValidateAPI, since local commands do not need it.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Batch.Backoff.Mode) {
	case "", BackoffFixed, BackoffExponential:
	default:
		return errors.Newf("batch.backoff.mode must be %q or %q, got %q",
			BackoffFixed, BackoffExponential, c.Batch.Backoff.Mode)
	}
	if c.DeadLetter.Enabled && c.DeadLetter.Path == "" {
		return errors.New("dead_letter.path is required when the dead-letter spool is enabled")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.Newf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate)
	}
	opts := c.ClientOptions(nil)
	if err := opts.Validate(); err != nil {
		return errors.Wrap(err, "invalid batch settings")
	}
	return nil
}

// ValidateAPI checks the API section.
func (c *Config) ValidateAPI() error {
	return errors.Wrap(c.RESTConfig(nil).Validate(), "invalid api settings")
}

// BatchOptions converts the batch section.
func (c *Config) BatchOptions() batch.Options {
	opts := batch.Options{
		MaxOperationsPerChunk: c.Batch.ChunkSize,
		MaxParallelRequests:   c.Batch.Parallel,
		MaxRetries:            c.Batch.MaxRetries,
		RetryDelay:            c.Batch.RetryDelay.Duration(),
		StopOnFirstError:      c.Batch.StopOnFirstError,
	}
	if strings.EqualFold(c.Batch.Backoff.Mode, BackoffExponential) {
		initial := c.Batch.Backoff.Initial.Duration()
		if initial == 0 {
			initial = opts.RetryDelay
		}
		opts.Backoff = batch.ExponentialBackoff{
			Initial:    initial,
			Max:        c.Batch.Backoff.Max.Duration(),
			Multiplier: c.Batch.Backoff.Multiplier,
			Jitter:     c.Batch.Backoff.Jitter,
		}
	}
	return opts
}

// ClientOptions converts the client and batch sections. The failure sink and
// metrics collector are left for the caller to attach.
func (c *Config) ClientOptions(logger *zap.Logger) client.ClientOptions {
	return client.ClientOptions{
		MaxOperationsPerRequest: c.Client.MaxOperationsPerRequest,
		DebugMode:               c.Client.Debug,
		Logger:                  logger,
		LogLevel:                c.Logging.Level,
		Batch:                   c.BatchOptions(),
	}
}

// RESTConfig converts the API section.
func (c *Config) RESTConfig(logger *zap.Logger) rest.Config {
	return rest.Config{
		APIURL:               c.API.URL,
		StoreID:              c.API.StoreID,
		AuthorizationModelID: c.API.AuthorizationModelID,
		APIToken:             c.API.Token,
		Timeout:              c.API.Timeout.Duration(),
		OnDuplicateWrites:    c.API.OnDuplicateWrites,
		OnMissingDeletes:     c.API.OnMissingDeletes,
		RequestsPerSecond:    c.API.RateLimit.RPS,
		Burst:                c.API.RateLimit.Burst,
		MaxConnsPerHost:      c.API.MaxConnsPerHost,
		TLS: rest.TLSConfig{
			CAFile:             c.API.TLS.CAFile,
			CertFile:           c.API.TLS.CertFile,
			KeyFile:            c.API.TLS.KeyFile,
			InsecureSkipVerify: c.API.TLS.InsecureSkipVerify,
		},
		Logger: logger,
	}
}

// TelemetryConfig converts the tracing section.
func (c *Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: client.Version,
		Endpoint:       c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
		SampleRate:     c.Tracing.SampleRate,
	}
}

// Summary returns the settings as loggable fields, with the token redacted
// by the logger.
func (c *Config) Summary() []zap.Field {
	return []zap.Field{
		zap.String("api_url", c.API.URL),
		zap.String("store_id", c.API.StoreID),
		zap.String("token", c.API.Token),
		zap.Int("chunk_size", c.Batch.ChunkSize),
		zap.Int("parallel", c.Batch.Parallel),
		zap.Int("max_retries", c.Batch.MaxRetries),
		zap.Duration("retry_delay", c.Batch.RetryDelay.Duration()),
		zap.String("backoff", c.Batch.Backoff.Mode),
		zap.Bool("stop_on_first_error", c.Batch.StopOnFirstError),
		zap.Bool("dead_letter", c.DeadLetter.Enabled),
		zap.Bool("tracing", c.Tracing.Enabled),
		zap.String("log_level", logging.ParseLevel(c.Logging.Level).CapitalString()),
	}
}
