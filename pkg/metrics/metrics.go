// Package metrics exposes the Prometheus registry of the preloader.
// All metrics are defined in their respective packages (client, pagination,
// preload, cache, warmer, scheduler, lease) via promauto.
//
// This package provides the HTTP handler and a reference for all available
// metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the preloader.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - preload_http_requests_total{host, status} (Counter): Requests by host and HTTP status
//   - preload_http_request_duration_seconds{host} (Histogram): Request duration, retries included
//   - preload_http_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - preload_http_retries_total{error_class} (Counter): Retry attempts by error class
//   - preload_http_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - preload_http_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// URL List Metrics (pkg/pagination):
//   - preload_fetch_pages_total{result} (Counter): API pages by result (ok, error)
//   - preload_fetch_urls (Gauge): URLs returned by the last fetch
//
// Preload Metrics (pkg/preload, pkg/cache):
//   - preload_urls_total{result} (Counter): Preloaded URLs by result (ok, status, error)
//   - preload_url_duration_seconds (Histogram): Time per URL
//   - preload_cache_responses_total{status} (Counter): Upstream cache status (hit, miss, unknown)
//   - preload_cache_age_seconds (Histogram): Age of cache hits
//
// Cycle Metrics (pkg/warmer, pkg/scheduler, pkg/lease):
//   - preload_cycles_total{outcome} (Counter): Cycles by outcome (complete, partial, skipped)
//   - preload_cycle_duration_seconds (Histogram): Cycle duration
//   - preload_last_cycle_timestamp_seconds (Gauge): End of the last cycle
//   - preload_next_cycle_timestamp_seconds (Gauge): Next due cycle
//   - preload_lease_acquisitions_total{result} (Counter): Lease attempts (acquired, held, error)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(preload_cache_responses_total{status="hit"}[1h])) /
//   sum(rate(preload_cache_responses_total[1h]))
//
//   # Stale preloader (no cycle for an hour)
//   time() - preload_last_cycle_timestamp_seconds > 3600
//
//   # Preload Error Rate
//   rate(preload_urls_total{result="error"}[1h])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(preload_http_request_duration_seconds_bucket[5m]))
