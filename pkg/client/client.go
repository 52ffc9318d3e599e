// Package client provides the shared HTTP client used for API and preload
// requests, with urllib3-style retry on transient failures.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/url-preloader/pkg/headers"
	"github.com/Sternrassler/url-preloader/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for HTTP client operations.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preload_http_requests_total",
		Help: "Total HTTP requests by host and status",
	}, []string{"host", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "preload_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by host, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"host"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preload_http_errors_total",
		Help: "Total HTTP errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client issues HTTP requests with retry and backoff. It is safe for
// sequential reuse by the fetcher and the preloader.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
	sleep      sleepFunc
	now        func() time.Time
}

// Config holds the client configuration.
type Config struct {
	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration

	// Retry controls automatic retries.
	Retry RetryConfig

	// Connection pool
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		Retry:               DefaultRetryConfig(),
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}

	logger := log.With().Str("component", "http-client").Logger()

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config: cfg,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}, nil
}

// Do performs an HTTP request, retrying transient failures for idempotent
// methods. A response whose status is not retryable is returned as-is and
// the caller decides what it means. After the retry budget is spent Do
// returns an error wrapping ErrRetryExhausted and the last *RequestError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	host := req.URL.Host

	startTime := time.Now()
	defer func() {
		httpRequestDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())
	}()

	logger := logging.ForContext(ctx, c.logger)
	retryable := c.config.Retry.methodAllowed(req.Method)
	attempt := 0

	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.config.Retry, c.sleep, logger, func() error {
		attempt++
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)

		if reqErr != nil {
			httpErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			httpRequestsTotal.WithLabelValues(host, "network_error").Inc()

			failure := &RequestError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        reqErr,
			}
			// Cancellation is final.
			if ctx.Err() != nil || !retryable {
				return failure
			}
			logger.Debug().Err(reqErr).Str("host", host).Int("attempt", attempt).Msg("HTTP request failed")
			return &retryableError{class: ErrorClassNetwork, err: failure}
		}

		httpRequestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 400 {
			return nil
		}

		errClass := c.classifyError(resp, nil)
		httpErrorsTotal.WithLabelValues(string(errClass)).Inc()

		if !retryable || !c.config.Retry.retryStatus(resp.StatusCode) {
			// Let the caller handle the status
			return nil
		}

		failure := &RequestError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}

		var retryAfter time.Duration
		if c.config.Retry.RespectRetryAfter && retryAfterStatus(resp.StatusCode) {
			if wait, ok := parseRetryAfter(resp.Header.Get("Retry-After"), c.now()); ok {
				retryAfter = wait
				if limit := c.config.Retry.MaxRetryAfter; limit > 0 && retryAfter > limit {
					retryAfter = limit
				}
			}
		}

		logger.Debug().
			Str("host", host).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Int("attempt", attempt).
			Msg("Transient HTTP status")

		drainAndClose(resp)
		resp = nil
		return &retryableError{class: errClass, retryAfter: retryAfter, err: failure}
	})

	if retryErr != nil {
		if resp != nil {
			drainAndClose(resp)
		}
		return nil, retryErr
	}

	return resp, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// Get performs a GET request to rawURL with the given headers.
func (c *Client) Get(ctx context.Context, rawURL string, h headers.Set) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	h.Apply(req.Header)

	return c.Do(req)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// IsRetryExhausted reports whether err came from a spent retry budget.
func IsRetryExhausted(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}

// drainAndClose discards the rest of the body so the connection can be reused.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}

// DrainAndClose is drainAndClose for callers that ignore the body.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	drainAndClose(resp)
}
