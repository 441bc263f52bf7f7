// Package transport implements the HTTP/JSON round trip shared by the daemon and
// wallet-api clients. A Client performs exactly one request per call: it never retries,
// batches or caches, and it holds no state that changes between calls.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bardlex/turtlego/pkg/errors"
	"github.com/bardlex/turtlego/pkg/log"
)

const (
	// DefaultTimeout bounds a single round trip when Config.Timeout is zero
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent is sent when Config.UserAgent is empty
	DefaultUserAgent = "turtlego/1.0"

	maxResponseSize = 64 << 20
)

// Config describes where a remote service lives and how to authenticate to it.
// It is copied into the Client at construction and never changes afterwards.
type Config struct {
	Host      string
	Port      int
	SSL       bool
	Timeout   time.Duration
	UserAgent string

	// APIKey is sent in APIKeyHeader on every request when both are set
	APIKey       string
	APIKeyHeader string
}

// BaseURL renders the scheme, host and port of the service
func (c Config) BaseURL() string {
	scheme := "http"
	if c.SSL {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the connection settings
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New(errors.ErrorTypeValidation, "transport_config", "host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New(errors.ErrorTypeValidation, "transport_config", "port must be between 1 and 65535").
			WithContext("port", c.Port)
	}
	if c.Timeout < 0 {
		return errors.New(errors.ErrorTypeValidation, "transport_config", "timeout must not be negative").
			WithContext("timeout", c.Timeout.String())
	}
	if c.APIKey != "" && c.APIKeyHeader == "" {
		return errors.New(errors.ErrorTypeValidation, "transport_config", "api key header is required with an api key")
	}
	return nil
}

// Call describes one request. Operation names the call in errors, logs and metrics; Path is
// the concrete request path. A nil Body sends no body, a nil Out discards the response.
type Call struct {
	Operation string
	Method    string
	Path      string
	Body      any
	Out       any
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithMetrics records every round trip in m
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger logs every round trip at debug level
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithName sets the client label used in metrics and logs
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// Client performs HTTP/JSON round trips against one service
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	metrics *Metrics
	logger  *log.Logger
	name    string
}

// New validates cfg and builds a Client for it.
//
// Parameters:
//   - cfg: Connection settings, copied and frozen
//   - opts: Optional HTTP client, metrics, logger and name
//
// Returns:
//   - *Client: Client ready for concurrent use
//   - error: Validation error if cfg is unusable
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	c := &Client{
		cfg:     cfg,
		baseURL: cfg.BaseURL(),
		http:    &http.Client{},
		logger:  log.Nop(),
		name:    "http",
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent(c.name).WithEndpoint(c.baseURL)

	return c, nil
}

// Config returns a copy of the connection settings
func (c *Client) Config() Config {
	return c.cfg
}

// BaseURL returns the service root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs call and decodes a 2xx response into call.Out.
//
// Failures are classified as follows:
//   - Timeout: the per-request deadline or the caller's deadline expired
//   - Network: the connection could not be made or broke
//   - Rejected: non-2xx response carrying a recognised error payload (*APIError in the chain)
//   - Protocol: any other non-2xx status, or a 2xx body that is not valid JSON for call.Out
func (c *Client) Do(ctx context.Context, call Call) error {
	start := time.Now()
	status, err := c.do(ctx, call)
	elapsed := time.Since(start)

	c.logger.LogRequest(call.Method, call.Path, status, elapsed, err)
	if c.metrics != nil {
		c.metrics.observe(c.name, call.Operation, outcome(err), elapsed)
	}

	return err
}

// Probe reports whether the service answers at path at all. Any HTTP status counts as an
// answer; only transport failures return false.
func (c *Client) Probe(ctx context.Context, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false
	}
	c.setHeaders(req, false)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).Debug("probe failed", "path", path)
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return true
}

func (c *Client) do(ctx context.Context, call Call) (int, error) {
	var body io.Reader
	if call.Body != nil {
		payload, err := json.Marshal(call.Body)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeValidation, call.Operation,
				"failed to encode request body")
		}
		body = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, call.Method, c.baseURL+call.Path, body)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeValidation, call.Operation, "failed to build request").
			WithContext("path", call.Path)
	}
	c.setHeaders(req, call.Body != nil)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, classifyTransport(err, call)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, classifyTransport(err, call)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, statusError(resp.StatusCode, raw, call)
	}

	if call.Out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}

	if err := json.Unmarshal(raw, call.Out); err != nil {
		return resp.StatusCode, errors.Wrap(err, errors.ErrorTypeProtocol, call.Operation,
			"malformed response body").
			WithContext("path", call.Path).
			WithStatus(resp.StatusCode, 0)
	}

	return resp.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}
}

func classifyTransport(err error, call Call) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrorTypeTimeout, call.Operation, "request timed out").
			WithContext("path", call.Path)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(err, errors.ErrorTypeTimeout, call.Operation, "request timed out").
			WithContext("path", call.Path)
	}

	if stderrors.Is(err, context.Canceled) {
		return errors.Wrap(err, errors.ErrorTypeInternal, call.Operation, "request canceled").
			WithContext("path", call.Path)
	}

	se := errors.Wrap(err, errors.ErrorTypeNetwork, call.Operation, "request failed").
		WithContext("path", call.Path)
	se.Retryable = true
	return se
}

func statusError(status int, raw []byte, call Call) error {
	if apiErr, ok := parseErrorPayload(raw); ok {
		apiErr.StatusCode = status
		return errors.Wrap(apiErr, errors.ErrorTypeRejected, call.Operation, apiErr.Message).
			WithContext("path", call.Path).
			WithStatus(status, apiErr.Code)
	}

	return errors.New(errors.ErrorTypeProtocol, call.Operation,
		fmt.Sprintf("unexpected HTTP status %d", status)).
		WithContext("path", call.Path).
		WithStatus(status, 0)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var se *errors.ServiceError
	if stderrors.As(err, &se) {
		return string(se.Type)
	}
	return string(errors.ErrorTypeInternal)
}
