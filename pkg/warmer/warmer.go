// Package warmer runs one preload cycle: fetch the URL list, preload every
// URL, and report the outcome.
package warmer

import (
	"context"
	"time"

	"github.com/Sternrassler/url-preloader/pkg/logging"
	"github.com/Sternrassler/url-preloader/pkg/pagination"
	"github.com/Sternrassler/url-preloader/pkg/preload"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Cycle outcomes.
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeSkipped  = "skipped"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preload_cycles_total",
		Help: "Total preload cycles by outcome",
	}, []string{"outcome"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "preload_cycle_duration_seconds",
		Help:    "Duration of a preload cycle in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	lastCycleTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "preload_last_cycle_timestamp_seconds",
		Help: "Unix time at which the last preload cycle finished",
	})
)

// Fetcher lists the URLs to preload. *pagination.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, apiURL string) pagination.Result
}

// Preloader requests URLs. *preload.Preloader implements it.
type Preloader interface {
	Preload(ctx context.Context, urls []string) preload.Result
}

// Locker grants the right to run a cycle. *lease.Lease implements it.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
}

// Result summarizes one cycle.
type Result struct {
	ID       string
	Outcome  string
	URLs     int
	Failed   int
	FetchErr error
	Duration time.Duration
}

// Warmer ties fetching and preloading together.
type Warmer struct {
	apiURL    string
	fetcher   Fetcher
	preloader Preloader
	locker    Locker
	logger    zerolog.Logger

	now   func() time.Time
	newID func() string
}

// New creates a warmer for apiURL. locker may be nil, in which case every
// cycle runs.
func New(apiURL string, f Fetcher, p Preloader, locker Locker, logger zerolog.Logger) *Warmer {
	return &Warmer{
		apiURL:    apiURL,
		fetcher:   f,
		preloader: p,
		locker:    locker,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// RunCycle runs a single preload cycle. Failures are logged and reflected
// in the result; RunCycle never aborts the caller's loop.
func (w *Warmer) RunCycle(ctx context.Context) Result {
	start := w.now()
	result := Result{ID: w.newID()}

	ctx = logging.WithCycleID(ctx, result.ID)
	logger := logging.ForContext(ctx, w.logger)

	if w.locker != nil {
		ok, err := w.locker.TryAcquire(ctx)
		switch {
		case err != nil:
			// Redis being down must not stop preloading
			logger.Warn().Err(err).Msg("Lease unavailable, running cycle anyway")
		case !ok:
			result.Outcome = OutcomeSkipped
			cyclesTotal.WithLabelValues(OutcomeSkipped).Inc()
			logger.Info().Msg("Cycle lease held elsewhere, skipping cycle")
			return result
		}
	}

	logger.Info().Str("api_url", w.apiURL).Msg("Starting preload cycle")

	fetched := w.fetcher.Fetch(ctx, w.apiURL)
	preloaded := w.preloader.Preload(ctx, fetched.URLs)

	result.URLs = preloaded.Total
	result.Failed = preloaded.Failed
	result.FetchErr = fetched.Err
	result.Duration = w.now().Sub(start)
	result.Outcome = OutcomeComplete
	if fetched.Partial() || preloaded.Failed > 0 || preloaded.Cancelled > 0 {
		result.Outcome = OutcomePartial
	}

	cyclesTotal.WithLabelValues(result.Outcome).Inc()
	cycleDuration.Observe(result.Duration.Seconds())
	lastCycleTimestamp.Set(float64(w.now().Unix()))

	logger.Info().
		Int("urls", result.URLs).
		Int("failed", result.Failed).
		Int("pages", fetched.Pages).
		Bool("partial_list", fetched.Partial()).
		Str("outcome", result.Outcome).
		Dur("duration", result.Duration).
		Msg("Preload cycle finished")

	return result
}
