package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Veirt/weathr/internal/observability"
)

const (
	// DefaultUserAgent identifies the application to upstreams. Nominatim rejects
	// requests without one.
	DefaultUserAgent = "weathr (+https://github.com/Veirt/weathr)"

	// ConnectTimeout bounds TCP connection setup for every upstream.
	ConnectTimeout = 5 * time.Second

	maxBodyBytes = 4 << 20
)

// Client performs single GET requests that decode JSON, classifying failures
// into the package's error taxonomy. Retrying is left to FetchWithRetry.
type Client struct {
	name    string
	timeout time.Duration
	client  *http.Client
	headers http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHeader sets a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithHTTPClient replaces the underlying http.Client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// New creates a Client. name is the provider label used in metrics; timeout bounds
// each request end to end.
func New(name string, timeout time.Duration, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext

	c := &Client{
		name:    name,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout, Transport: transport},
		headers: http.Header{},
	}
	c.headers.Set("Accept", "application/json")
	c.headers.Set("User-Agent", DefaultUserAgent)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return c.name }

// GetJSON issues one GET to rawURL and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(c.name, "error").Inc()
		return &NetworkError{Kind: NetworkClientCreation, URL: redactURL(rawURL), Err: err}
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues(c.name, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(c.name, "error").Observe(duration)
		return ClassifyTransportError(err, rawURL, c.timeout)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(c.name, status).Inc()
	observability.UpstreamDuration.WithLabelValues(c.name, status).Observe(duration)

	if err := c.handleErrorResponse(resp, rawURL); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ClassifyTransportError(fmt.Errorf("read response body: %w", err), rawURL, c.timeout)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: parse response: %v", ErrProviderMapping, c.name, err)
	}
	return nil
}

func (c *Client) handleErrorResponse(resp *http.Response, rawURL string) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s rejected credentials (HTTP %d)", ErrConfig, c.name, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s returned HTTP 404", ErrNotFound, c.name)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NetworkError{Kind: NetworkHTTPStatus, URL: redactURL(rawURL), StatusCode: resp.StatusCode, Timeout: c.timeout}
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
