package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings like "250ms" or
// from plain numbers, read as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return td, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return 0, errors.Newf("invalid duration value: %q", raw)
}

// APIConfig describes the write endpoint.
type APIConfig struct {
	URL                  string   `yaml:"url"`
	StoreID              string   `yaml:"store_id"`
	AuthorizationModelID string   `yaml:"authorization_model_id"`
	Token                string   `yaml:"token"`
	Timeout              Duration `yaml:"timeout"`
	OnDuplicateWrites    string   `yaml:"on_duplicate_writes"`
	OnMissingDeletes     string   `yaml:"on_missing_deletes"`
	MaxConnsPerHost      int      `yaml:"max_conns_per_host"`
	RateLimit            struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig selects custom CA and client certificates.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// BatchConfig holds the chunking, parallelism and retry settings.
type BatchConfig struct {
	ChunkSize        int           `yaml:"chunk_size"`
	Parallel         int           `yaml:"parallel"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       Duration      `yaml:"retry_delay"`
	StopOnFirstError bool          `yaml:"stop_on_first_error"`
	Backoff          BackoffConfig `yaml:"backoff"`
}

// BackoffConfig selects the delay between retries. Mode "fixed" (the
// default) waits RetryDelay every time.
type BackoffConfig struct {
	Mode       string   `yaml:"mode"` // fixed | exponential
	Initial    Duration `yaml:"initial"`
	Max        Duration `yaml:"max"`
	Multiplier float64  `yaml:"multiplier"`
	Jitter     bool     `yaml:"jitter"`
}

// ClientConfig holds client-level settings.
type ClientConfig struct {
	MaxOperationsPerRequest int  `yaml:"max_operations_per_request"`
	Debug                   bool `yaml:"debug"`
	LogAttempts             bool `yaml:"log_attempts"`
}

// TracingConfig enables an OpenTelemetry span per send attempt, exported
// over OTLP gRPC. An empty endpoint uses OTEL_EXPORTER_OTLP_ENDPOINT or the
// exporter default of localhost:4317.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"otlp_endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// DeadLetterConfig enables the local failure spool.
type DeadLetterConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig enables the prometheus collector. When TextfilePath is set
// the registry is written there after each command, in the textfile
// collector format.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TextfilePath string `yaml:"textfile_path"`
}
