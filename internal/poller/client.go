package poller

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const maxResponseBodySize = 8 << 20 // 8MB, large workspaces return big channel lists

// connection pooling limits; a single workspace only ever needs a handful
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// DefaultRequestTimeout bounds a single Slack API round trip including the body read.
const DefaultRequestTimeout = 10 * time.Second

// Client is an HTTP client wrapper used as the transport for Slack API calls.
//
// Client implements the Do method expected by slack-go, so it can be handed
// to slack.OptionHTTPClient. It adds connection pooling, a whole-request
// timeout, a response body size limit and debug logging of each round trip.
//
// Only the method, URL path and status code are logged. Query strings,
// headers and bodies may carry the workspace token and are never logged.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new [Client].
//
// A zero or negative timeout falls back to [DefaultRequestTimeout]. A nil
// logger falls back to slog.Default().
//
// Connection pooling configuration:
//   - MaxIdleConns: 10 total idle connections
//   - MaxIdleConnsPerHost: 4 idle connections per host
//   - MaxConnsPerHost: 4 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{
			// slack-go reads the body after Do returns, so the deadline has to
			// live on the client rather than on a request context we cancel here
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
				DisableKeepAlives:   false, // explicitly enable connection reuse
			},
		},
		logger: logger,
	}
}

// Do sends an HTTP request and returns the response.
//
// The response body is wrapped so that reads stop after 8MB.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("slack api request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		return nil, goerr.Wrap(err, "request failed", goerr.V("path", req.URL.Path))
	}

	c.logger.Debug("slack api request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	resp.Body = &limitedBody{
		Reader: io.LimitReader(resp.Body, maxResponseBodySize),
		Closer: resp.Body,
	}
	return resp, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil receiver. After Close, the client
// remains usable but new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// limitedBody caps reads while still closing the original body.
type limitedBody struct {
	io.Reader
	io.Closer
}
