package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TUPLEBATCH_"

// DefaultEnvFile is loaded when no env file is named; its absence is not an error.
const DefaultEnvFile = ".env"

// LoadEnvFile loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. An empty path loads
// DefaultEnvFile if it exists.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "load env file %s", path)
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings from TUPLEBATCH_* variables. A nil lookup
// reads the process environment. It returns how many variables were applied.
func (c *Config) ApplyEnv(lookup LookupFunc) (int, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	applied := 0
	var errs []error
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return "", false
		}
		applied++
		return strings.TrimSpace(v), true
	}
	fail := func(name string, err error) {
		errs = append(errs, errors.Wrapf(err, "%s%s", EnvPrefix, name))
	}

	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := get(name); ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = i
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := get(name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := parseBool(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *Duration) {
		if v, ok := get(name); ok {
			d, err := parseDuration(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = Duration(d)
		}
	}

	// api
	str("API_URL", &c.API.URL)
	str("STORE_ID", &c.API.StoreID)
	str("AUTHORIZATION_MODEL_ID", &c.API.AuthorizationModelID)
	str("API_TOKEN", &c.API.Token)
	duration("API_TIMEOUT", &c.API.Timeout)
	str("ON_DUPLICATE_WRITES", &c.API.OnDuplicateWrites)
	str("ON_MISSING_DELETES", &c.API.OnMissingDeletes)
	integer("MAX_CONNS_PER_HOST", &c.API.MaxConnsPerHost)
	float("RATE_RPS", &c.API.RateLimit.RPS)
	integer("RATE_BURST", &c.API.RateLimit.Burst)
	str("TLS_CA_FILE", &c.API.TLS.CAFile)
	str("TLS_CERT_FILE", &c.API.TLS.CertFile)
	str("TLS_KEY_FILE", &c.API.TLS.KeyFile)
	boolean("TLS_INSECURE_SKIP_VERIFY", &c.API.TLS.InsecureSkipVerify)

	// batch
	integer("CHUNK_SIZE", &c.Batch.ChunkSize)
	integer("PARALLEL", &c.Batch.Parallel)
	integer("MAX_RETRIES", &c.Batch.MaxRetries)
	duration("RETRY_DELAY", &c.Batch.RetryDelay)
	boolean("STOP_ON_FIRST_ERROR", &c.Batch.StopOnFirstError)
	str("BACKOFF_MODE", &c.Batch.Backoff.Mode)

	// client
	integer("MAX_OPERATIONS_PER_REQUEST", &c.Client.MaxOperationsPerRequest)
	boolean("DEBUG", &c.Client.Debug)

	boolean("DEAD_LETTER_ENABLED", &c.DeadLetter.Enabled)
	str("DEAD_LETTER_PATH", &c.DeadLetter.Path)
	str("LOG_LEVEL", &c.Logging.Level)
	boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	str("METRICS_TEXTFILE", &c.Metrics.TextfilePath)
	boolean("TRACING_ENABLED", &c.Tracing.Enabled)
	str("TRACING_ENDPOINT", &c.Tracing.Endpoint)
	boolean("TRACING_INSECURE", &c.Tracing.Insecure)
	float("TRACING_SAMPLE_RATE", &c.Tracing.SampleRate)

	if len(errs) > 0 {
		return applied, errors.Join(errs...)
	}
	return applied, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	default:
		return false, errors.Newf("invalid boolean value: %q", v)
	}
}
