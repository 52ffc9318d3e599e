// Package preload requests every listed frontend URL so the caches in front
// of it are warm.
package preload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/url-preloader/pkg/cache"
	"github.com/Sternrassler/url-preloader/pkg/headers"
	"github.com/Sternrassler/url-preloader/pkg/logging"
	"github.com/Sternrassler/url-preloader/pkg/progress"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	urlsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preload_urls_total",
		Help: "Total preloaded URLs by result",
	}, []string{"result"}) // "ok", "status", "error"

	urlDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "preload_url_duration_seconds",
		Help:    "Time to preload a single URL, retries included",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

// Requester issues GET requests. *client.Client implements it.
type Requester interface {
	Get(ctx context.Context, rawURL string, h headers.Set) (*http.Response, error)
}

// Result summarizes one preload pass.
type Result struct {
	Total  int
	Failed int
	// Cancelled counts URLs left unfinished because ctx was cancelled.
	Cancelled int
	Duration  time.Duration
}

// Preloader requests URLs sequentially and discards the bodies.
type Preloader struct {
	client   Requester
	headers  headers.Set
	progress progress.Func
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a preloader sending h with every request. A nil progress
// function disables progress reporting.
func New(c Requester, h headers.Set, p progress.Func, logger zerolog.Logger) *Preloader {
	if p == nil {
		p = progress.Nop
	}
	return &Preloader{
		client:   c,
		headers:  h.Clone(),
		progress: p,
		logger:   logger,
		now:      time.Now,
	}
}

// Preload requests every URL in order. A failing URL is logged and the
// pass continues with the next one. Cancelling ctx stops the pass.
func (p *Preloader) Preload(ctx context.Context, urls []string) Result {
	start := p.now()
	result := Result{Total: len(urls)}
	logger := logging.ForContext(ctx, p.logger)

	p.progress(0, len(urls))

	for i, rawURL := range urls {
		if ctx.Err() != nil {
			result.Cancelled = len(urls) - i
			break
		}
		if err := p.preloadOne(ctx, rawURL, logger); err != nil {
			if ctx.Err() != nil {
				result.Cancelled = len(urls) - i
				break
			}
			result.Failed++
			logger.Error().Err(err).Str("url", rawURL).Msg("Error preloading")
		}
		p.progress(i+1, len(urls))
	}

	if result.Cancelled > 0 {
		logger.Warn().
			Int("remaining", result.Cancelled).
			Int("failed", result.Failed).
			Msg("Preload cancelled")
	}

	result.Duration = p.now().Sub(start)
	return result
}

func (p *Preloader) preloadOne(ctx context.Context, rawURL string, logger zerolog.Logger) error {
	start := p.now()
	defer func() {
		urlDuration.Observe(p.now().Sub(start).Seconds())
	}()

	resp, err := p.client.Get(ctx, rawURL, p.headers)
	if err != nil {
		urlsTotal.WithLabelValues("error").Inc()
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		urlsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("read body: %w", err)
	}

	status := cache.Inspect(resp, p.now())
	cache.Observe(status)

	event := logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Str("cache", status.Label()).
		Dur("duration", p.now().Sub(start))
	if status.Source != "" {
		event = event.Str("cache_source", status.Source)
	}
	if status.Age > 0 {
		event = event.Dur("age", status.Age)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		urlsTotal.WithLabelValues("status").Inc()
		event.Msg("Preloaded with non-success status")
		return nil
	}

	urlsTotal.WithLabelValues("ok").Inc()
	event.Msg("Preloaded")
	return nil
}
