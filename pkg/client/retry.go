package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	httpRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preload_http_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	httpRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "preload_http_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0, 1, 2, 4, 10, 30, 120},
	}, []string{"error_class"})

	httpRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preload_http_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial request.
	MaxRetries int

	// BackoffFactor scales the exponential backoff. The n-th retry waits
	// BackoffFactor * 2^(n-1), except the first retry which is immediate.
	BackoffFactor time.Duration

	// MaxBackoff caps the computed backoff.
	MaxBackoff time.Duration

	// MaxRetryAfter caps a server supplied Retry-After delay.
	MaxRetryAfter time.Duration

	// StatusForcelist holds the response codes that trigger a retry.
	StatusForcelist []int

	// AllowedMethods holds the HTTP methods that may be retried.
	AllowedMethods []string

	// RespectRetryAfter honors the Retry-After header on 413, 429 and 503.
	RespectRetryAfter bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BackoffFactor:     1 * time.Second,
		MaxBackoff:        120 * time.Second,
		MaxRetryAfter:     5 * time.Minute,
		StatusForcelist:   []int{429, 500, 502, 503, 504},
		AllowedMethods:    []string{http.MethodHead, http.MethodGet, http.MethodOptions},
		RespectRetryAfter: true,
	}
}

// Backoff returns the wait before the given retry (1-based).
func (c RetryConfig) Backoff(retry int) time.Duration {
	if retry <= 1 || c.BackoffFactor <= 0 {
		return 0
	}
	backoff := time.Duration(float64(c.BackoffFactor) * math.Pow(2, float64(retry-1)))
	if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff
}

// methodAllowed reports whether requests with method may be retried.
func (c RetryConfig) methodAllowed(method string) bool {
	for _, m := range c.AllowedMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// retryStatus reports whether a response status is in the forcelist.
func (c RetryConfig) retryStatus(status int) bool {
	for _, code := range c.StatusForcelist {
		if code == status {
			return true
		}
	}
	return false
}

// retryableError marks an attempt failure that may be retried.
type retryableError struct {
	class      ErrorClass
	retryAfter time.Duration
	err        error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable error,
// or the retry budget is spent. fn signals a retryable failure by returning
// a *retryableError. Retry events are logged on logger.
func retryWithBackoff(ctx context.Context, config RetryConfig, sleep sleepFunc, logger zerolog.Logger, fn func() error) error {
	var lastErr error

	for retry := 0; ; retry++ {
		err := fn()
		if err == nil {
			if retry > 0 {
				logger.Info().
					Int("attempt", retry+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		var re *retryableError
		if !errors.As(err, &re) || !shouldRetry(re.class) {
			return err
		}
		lastErr = re.err

		if retry >= config.MaxRetries {
			break
		}

		next := retry + 1
		wait := config.Backoff(next)
		if re.retryAfter > 0 {
			wait = re.retryAfter
		}

		httpRetriesTotal.WithLabelValues(string(re.class)).Inc()
		httpRetryBackoffSeconds.WithLabelValues(string(re.class)).Observe(wait.Seconds())

		logger.Warn().
			Err(re.err).
			Str("error_class", string(re.class)).
			Int("retry", next).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		if err := sleep(ctx, wait); err != nil {
			logger.Warn().
				Str("error_class", string(re.class)).
				Int("retry", next).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	var re *RequestError
	class := ErrorClassNetwork
	if errors.As(lastErr, &re) {
		class = re.ErrorClass
	}
	httpRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Str("error_class", string(class)).
		Int("max_retries", config.MaxRetries).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d retries: %w", ErrRetryExhausted, config.MaxRetries, lastErr)
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	wait := when.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// retryAfterStatus lists the statuses on which Retry-After is honored.
func retryAfterStatus(status int) bool {
	return status == http.StatusRequestEntityTooLarge ||
		status == http.StatusTooManyRequests ||
		status == http.StatusServiceUnavailable
}
