package redfish

import (
	"crypto/x509"
	"net/http"
	"time"

	"github.com/go-logr/logr"
)

// Option for setting optional Config values.
type Option func(*Config)

func WithLogger(logger logr.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithRootPath(path string) Option {
	return func(c *Config) {
		c.RootPath = path
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithInsecureSkipVerify toggles TLS certificate validation of the BMC.
// The default, true, accepts any certificate.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *Config) {
		c.InsecureSkipVerify = skip
	}
}

// WithTLSCert validates the BMC certificate against the given PEM CA certificate.
func WithTLSCert(cert []byte) Option {
	return func(c *Config) {
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(cert)
		c.rootCAs = pool
	}
}

// WithHTTPClient overrides the http client. Timeout and TLS options are not applied to it.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.httpClient = client
	}
}

func WithLogRequests(log bool) Option {
	return func(c *Config) {
		c.LogRequests = log
	}
}
