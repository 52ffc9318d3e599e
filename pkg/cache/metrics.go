package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResponsesTotal tracks preloaded responses by cache status
	ResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preload_cache_responses_total",
			Help: "Total preloaded responses by upstream cache status",
		},
		[]string{"status"}, // "hit", "miss", "unknown"
	)

	// AgeSeconds tracks the Age header of cache hits
	AgeSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "preload_cache_age_seconds",
			Help:    "Age of cached responses in seconds",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 86400},
		},
	)
)

// Observe records status in the cache metrics.
func Observe(status Status) {
	ResponsesTotal.WithLabelValues(status.Label()).Inc()
	if status.Hit && status.Age > 0 {
		AgeSeconds.Observe(status.Age.Seconds())
	}
}
