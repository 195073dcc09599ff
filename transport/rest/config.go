package rest

import (
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/dan-strohschein/tuplebatch/protocol"
)

// Config configures the REST transport
type Config struct {
	// APIURL is the server base URL, e.g. https://api.example.com
	APIURL string

	// StoreID selects the store written to
	StoreID string

	// AuthorizationModelID pins writes to a model version when set
	AuthorizationModelID string

	// APIToken is sent as a bearer token when set
	APIToken string

	// Timeout bounds each request; an earlier context deadline wins
	Timeout time.Duration

	// OnDuplicateWrites and OnMissingDeletes select "error" or "ignore"
	OnDuplicateWrites string
	OnMissingDeletes  string

	// RequestsPerSecond enables client-side rate limiting when positive
	RequestsPerSecond float64
	Burst             int

	// MaxConnsPerHost caps open connections to the server
	MaxConnsPerHost int

	// MaxConsecutiveFailures marks the transport unhealthy after this many
	// network failures in a row
	MaxConsecutiveFailures int

	TLS TLSConfig

	UserAgent string

	Logger *zap.Logger

	// Dial overrides connection setup (used by tests)
	Dial fasthttp.DialFunc
}

// Defaults applied by New.
const (
	DefaultTimeout                = 10 * time.Second
	DefaultMaxConnsPerHost        = 16
	DefaultMaxConsecutiveFailures = 5
	DefaultUserAgent              = "tuplebatch"
)

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = DefaultMaxConnsPerHost
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api url is required")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return errors.Wrapf(err, "invalid api url %q", c.APIURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("api url %q must use http or https", c.APIURL)
	}
	if u.Host == "" {
		return errors.Newf("api url %q has no host", c.APIURL)
	}
	if c.StoreID == "" {
		return errors.New("store id is required")
	}
	if c.RequestsPerSecond < 0 {
		return errors.Newf("requests per second must not be negative, got %v", c.RequestsPerSecond)
	}
	params := protocol.WriteParams{OnDuplicateWrites: c.OnDuplicateWrites, OnMissingDeletes: c.OnMissingDeletes}
	return params.Validate()
}

// writeURL returns the write endpoint for the configured store.
func (c Config) writeURL() string {
	return strings.TrimRight(c.APIURL, "/") + "/stores/" + url.PathEscape(c.StoreID) + "/write"
}
