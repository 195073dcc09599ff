package rest

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dan-strohschein/tuplebatch/protocol"
)

// TLSConfig selects custom CA and client certificates.
type TLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool
}

// enabled reports whether any custom TLS setting is present.
func (c TLSConfig) enabled() bool {
	return c.CAFile != "" || c.CertFile != "" || c.KeyFile != "" || c.InsecureSkipVerify
}

// buildTLSConfig creates a TLS configuration, or nil when no custom setting
// is present.
func buildTLSConfig(opts TLSConfig) (*tls.Config, error) {
	if !opts.enabled() {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	// Load custom CA certificate if provided
	if opts.CAFile != "" {
		caCert, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, errors.Wrapf(err, "load CA certificate from %s", opts.CAFile)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, errors.Newf("failed to parse CA certificate %s", opts.CAFile)
		}

		tlsConfig.RootCAs = caCertPool
	}

	// Load client certificate and key if provided
	if opts.CertFile != "" || opts.KeyFile != "" {
		if opts.CertFile == "" || opts.KeyFile == "" {
			return nil, errors.New("client certificate and key must be set together")
		}
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, errors.Wrapf(err, "load client certificate %s", opts.CertFile)
		}

		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// classifyTLSError maps certificate failures to permanent transport errors.
// It returns nil when err is not a TLS failure.
func classifyTLSError(err error) *protocol.TransportError {
	errStr := err.Error()

	var code, message string
	switch {
	case strings.Contains(errStr, "certificate has expired"):
		code, message = "TLS_CERT_EXPIRED", "server certificate has expired"
	case strings.Contains(errStr, "certificate is not trusted"):
		code, message = "TLS_CERT_UNTRUSTED", "server certificate is not trusted (try setting a custom CA)"
	case strings.Contains(errStr, "doesn't match"):
		code, message = "TLS_HOSTNAME_MISMATCH", "server certificate hostname doesn't match the api url"
	case strings.Contains(errStr, "unknown authority"):
		code, message = "TLS_UNKNOWN_CA", "server certificate signed by unknown authority (try setting a custom CA)"
	case strings.Contains(errStr, "tls:"):
		code, message = "TLS_HANDSHAKE_FAILED", "TLS handshake failed"
	default:
		return nil
	}

	te := protocol.NetworkError(message, err)
	te.Retryable = false
	te.Details = map[string]interface{}{"tlsCode": code}
	return te
}
