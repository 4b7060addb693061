package redfish

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bmc-toolbox/bmclib/v2/providers"
	"github.com/go-logr/logr"
	"github.com/jacobweinstock/registrar"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jacobweinstock/vmedia"
)

// Reader reads a Redfish resource.
type Reader interface {
	Read(ctx context.Context, path string, v any) error
}

// Client reads and mutates Redfish resources.
type Client interface {
	Reader
	Mutate(ctx context.Context, method, path string, body any) error
}

// Config defines the configuration for talking to a Redfish management endpoint.
type Config struct {
	// Host is the BMC ip address or hostname. A scheme and port are optional. Example: 10.0.0.10 or https://10.0.0.10:8443
	Host string
	// User for basic authentication.
	User string
	// Pass for basic authentication.
	Pass string
	// RootPath is the Redfish service root. Paths passed to Read and Mutate are relative to it
	// unless they already start with it, as @odata.id values do.
	RootPath string
	// Timeout is the per request timeout.
	Timeout time.Duration
	// InsecureSkipVerify disables TLS certificate validation.
	// Management controllers ship with self-signed certificates so this is the default.
	InsecureSkipVerify bool
	// Logger is the logger to use for logging.
	Logger logr.Logger
	// LogRequests will log every request and response status at V(1).
	LogRequests bool

	// httpClient is the http client used for all methods.
	httpClient *http.Client
	// rootCAs, when set, are used to validate the BMC certificate.
	rootCAs *x509.CertPool
	// baseURL is the parsed Host, set by Open.
	baseURL *url.URL
}

const (
	// ProviderName for the Redfish implementation.
	ProviderName = "Redfish"
	// ProviderProtocol for the Redfish implementation.
	ProviderProtocol = "https"
	// FeatureVirtualMedia means the provider can insert and eject virtual media.
	FeatureVirtualMedia registrar.Feature = "virtualmedia"

	DefaultRootPath = "/redfish/v1"
	DefaultTimeout  = 30 * time.Second
)

// Features implemented by the Redfish provider.
var Features = registrar.Features{
	providers.FeaturePowerSet,
	providers.FeaturePowerState,
	providers.FeatureBootDeviceSet,
	FeatureVirtualMedia,
}

// success codes per method.
var success = map[string][]int{
	http.MethodGet:   {http.StatusOK},
	http.MethodPost:  {http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent},
	http.MethodPatch: {http.StatusOK, http.StatusAccepted, http.StatusNoContent},
}

// New returns a new Config for this Redfish provider.
//
// Defaults:
//
//	RootPath: /redfish/v1
//	Timeout: 30s
//	InsecureSkipVerify: true
//	Logger: logr.Discard()
//	LogRequests: false
//	httpClient: TLS verification per InsecureSkipVerify, instrumented with otelhttp
func New(host, user, pass string, opts ...Option) *Config {
	cfg := &Config{
		Host:               host,
		User:               user,
		Pass:               pass,
		RootPath:           DefaultRootPath,
		Timeout:            DefaultTimeout,
		InsecureSkipVerify: true,
		Logger:             logr.Discard(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = cfg.newHTTPClient()
	}

	return cfg
}

func (c *Config) newHTTPClient() *http.Client {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		// #nosec G402 -- BMCs use self-signed certificates, see WithInsecureSkipVerify.
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
	if c.rootCAs != nil {
		tlsConfig.RootCAs = c.rootCAs
		tlsConfig.InsecureSkipVerify = false
	}
	tp := http.DefaultTransport.(*http.Transport).Clone()
	tp.TLSClientConfig = tlsConfig

	return &http.Client{
		Transport: otelhttp.NewTransport(tp),
		Timeout:   c.Timeout,
	}
}

// Name returns the name of this Redfish provider.
func (c *Config) Name() string {
	return ProviderName
}

// Supports reports whether the provider implements all of the given features.
func (c *Config) Supports(features ...registrar.Feature) bool {
	return Features.Includes(features...)
}

// Open validates the Config and that the service root can be read.
func (c *Config) Open(ctx context.Context) error {
	host := c.Host
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("invalid host %q", c.Host)
	}
	c.baseURL = u

	var root map[string]any
	return c.Read(ctx, c.RootPath, &root)
}

// Close releases idle connections to the BMC.
func (c *Config) Close(_ context.Context) (err error) {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Read GETs path and decodes the JSON document into v. Only 200 is a success.
func (c *Config) Read(ctx context.Context, path string, v any) error {
	body, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	return nil
}

// Mutate sends body as JSON to path with method POST or PATCH.
func (c *Config) Mutate(ctx context.Context, method, path string, body any) error {
	switch method {
	case http.MethodPost, http.MethodPatch:
	default:
		return fmt.Errorf("unsupported mutation method %q", method)
	}
	if body == nil {
		body = struct{}{}
	}
	_, err := c.send(ctx, method, path, body)
	return err
}

func (c *Config) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	if c.baseURL == nil {
		return nil, errors.New("the redfish provider requires Open be called first")
	}
	req, err := c.createRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &vmedia.TransportError{Reason: vmedia.Unreachable, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &vmedia.TransportError{Reason: vmedia.Unreachable, Method: method, Path: path, Err: err}
	}
	if c.LogRequests {
		kvs := append(requestKVS(req), responseKVS(resp, time.Since(start))...)
		c.Logger.V(1).Info("redfish request", kvs...)
	}

	if !isSuccess(method, resp.StatusCode) {
		return nil, statusError(method, path, resp.StatusCode, respBody)
	}

	return respBody, nil
}

func (c *Config) createRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), r)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.User, c.Pass)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// resolve builds the absolute URL of a root relative path or an @odata.id.
func (c *Config) resolve(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasPrefix(path, c.RootPath) {
		path = strings.TrimSuffix(c.RootPath, "/") + path
	}
	u := *c.baseURL
	u.Path = path
	u.RawQuery = ""

	return u.String()
}

func isSuccess(method string, code int) bool {
	for _, s := range success[method] {
		if s == code {
			return true
		}
	}
	return false
}

func statusError(method, path string, code int, body []byte) error {
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return &vmedia.TransportError{
			Reason: vmedia.AuthFailed,
			Method: method,
			Path:   path,
			Err:    fmt.Errorf("status code: %d", code),
		}
	}
	pe := &vmedia.ProtocolError{Method: method, Path: path, StatusCode: code}
	if method == http.MethodPost {
		pe.Body = strings.TrimSpace(string(body))
	}
	return pe
}

// requestKVS never includes headers, they carry the basic auth credentials.
func requestKVS(req *http.Request) []interface{} {
	return []interface{}{
		"requestURL", req.URL.String(),
		"requestMethod", req.Method,
	}
}

func responseKVS(resp *http.Response, took time.Duration) []interface{} {
	return []interface{}{
		"statusCode", resp.StatusCode,
		"duration", took.String(),
	}
}

// FirstMember returns the @odata.id of the first member of a collection.
// Collections are read on every call, member identifiers can change between calls.
func FirstMember(ctx context.Context, r Reader, collection string) (string, error) {
	var col Collection
	if err := r.Read(ctx, collection, &col); err != nil {
		return "", err
	}
	if len(col.Members) == 0 || col.Members[0].ODataID == "" {
		return "", &vmedia.ResourceNotFoundError{Resource: "member of " + collection}
	}

	return col.Members[0].ODataID, nil
}
