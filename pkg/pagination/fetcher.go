package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/url-preloader/pkg/client"
	"github.com/Sternrassler/url-preloader/pkg/headers"
	"github.com/Sternrassler/url-preloader/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for URL list fetching.
var (
	fetchPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preload_fetch_pages_total",
		Help: "Total API pages requested by result",
	}, []string{"result"})

	fetchURLs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "preload_fetch_urls",
		Help: "Number of URLs returned by the last URL list fetch",
	})
)

var (
	// ErrStatus is returned when the API answers with a non-2xx status.
	ErrStatus = errors.New("unexpected status")

	// ErrDecode is returned when a page body is not a valid page document.
	ErrDecode = errors.New("decode page")

	// ErrTooLarge is returned when a page body exceeds MaxBodyBytes.
	ErrTooLarge = errors.New("page too large")
)

// Config holds fetcher configuration.
type Config struct {
	// PageParam is the query parameter carrying the page number.
	PageParam string

	// MaxPages bounds the walk when the API advertises an absurd total.
	MaxPages int

	// MaxBodyBytes bounds the size of a single page body.
	MaxBodyBytes int64
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		PageParam:    "page",
		MaxPages:     10000,
		MaxBodyBytes: 32 << 20,
	}
}

// Item is a single entry of a page.
type Item struct {
	URL string `json:"url"`
}

// Page is one decoded API response.
type Page struct {
	TotalPages *int   `json:"total_pages"`
	Items      []Item `json:"items"`
}

// Total returns total_pages, defaulting to 1 when absent.
func (p *Page) Total() int {
	if p.TotalPages == nil {
		return 1
	}
	return *p.TotalPages
}

// Requester issues GET requests. *client.Client implements it.
type Requester interface {
	Get(ctx context.Context, rawURL string, h headers.Set) (*http.Response, error)
}

// Result is the outcome of walking the API.
type Result struct {
	URLs       []string
	Pages      int
	TotalPages int
	Skipped    int
	Err        error
	Duration   time.Duration
}

// Partial reports whether the walk stopped before the last page.
func (r Result) Partial() bool {
	return r.Err != nil
}

// Fetcher walks the paginated API.
type Fetcher struct {
	client  Requester
	headers headers.Set
	config  Config
	logger  zerolog.Logger
}

// NewFetcher creates a new fetcher sending h with every API request.
func NewFetcher(c Requester, h headers.Set, config Config, logger zerolog.Logger) *Fetcher {
	if config.PageParam == "" {
		config.PageParam = "page"
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 10000
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 32 << 20
	}

	return &Fetcher{
		client:  c,
		headers: h.Clone(),
		config:  config,
		logger:  logger,
	}
}

// FetchURLs returns every URL listed by the API. On failure it logs the
// error and returns the URLs gathered before it.
func (f *Fetcher) FetchURLs(ctx context.Context, apiURL string) []string {
	return f.Fetch(ctx, apiURL).URLs
}

// Fetch walks the API from page 1 until page > total_pages.
func (f *Fetcher) Fetch(ctx context.Context, apiURL string) Result {
	start := time.Now()
	result := Result{URLs: []string{}, TotalPages: 1}
	logger := logging.ForContext(ctx, f.logger)

	for page := 1; page <= result.TotalPages; page++ {
		if page > f.config.MaxPages {
			logger.Warn().
				Int("max_pages", f.config.MaxPages).
				Int("total_pages", result.TotalPages).
				Msg("Page limit reached, stopping fetch")
			break
		}

		p, err := f.FetchPage(ctx, apiURL, page)
		if err != nil {
			fetchPagesTotal.WithLabelValues("error").Inc()
			result.Err = err

			event := logger.Error().Err(err).Int("page", page).Int("urls", len(result.URLs))
			switch {
			case errors.Is(err, ErrDecode):
				event.Msg("Failed to decode URL page")
			case errors.Is(err, ErrTooLarge):
				event.Msg("URL page too large")
			default:
				event.Msg("Failed to fetch URLs")
			}
			break
		}
		fetchPagesTotal.WithLabelValues("ok").Inc()

		result.Pages++
		result.TotalPages = p.Total()

		for _, item := range p.Items {
			if item.URL == "" {
				result.Skipped++
				logger.Warn().Int("page", page).Msg("Item without url, skipping")
				continue
			}
			result.URLs = append(result.URLs, item.URL)
		}

		logger.Debug().
			Int("page", page).
			Int("total_pages", result.TotalPages).
			Int("items", len(p.Items)).
			Msg("Fetched URL page")
	}

	result.Duration = time.Since(start)
	fetchURLs.Set(float64(len(result.URLs)))

	logger.Info().
		Int("urls", len(result.URLs)).
		Int("pages", result.Pages).
		Bool("partial", result.Partial()).
		Dur("duration", result.Duration).
		Msg("Fetch complete")

	return result
}

// FetchPage requests and decodes a single page.
func (f *Fetcher) FetchPage(ctx context.Context, apiURL string, page int) (*Page, error) {
	pageURL, err := PageURL(apiURL, f.config.PageParam, page)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Get(ctx, pageURL, f.headers)
	if err != nil {
		return nil, fmt.Errorf("get page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		client.DrainAndClose(resp)
		return nil, fmt.Errorf("get page %d: %w: %s", page, ErrStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", page, err)
	}
	if int64(len(body)) > f.config.MaxBodyBytes {
		return nil, fmt.Errorf("page %d: %w: over %d bytes", page, ErrTooLarge, f.config.MaxBodyBytes)
	}

	var p Page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("page %d: %w: %v", page, ErrDecode, err)
	}

	return &p, nil
}

// PageURL sets the page query parameter on apiURL. An existing param is
// replaced; the rest of the query is kept as written.
func PageURL(apiURL, param string, page int) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse api url: %q is not absolute", apiURL)
	}

	kept := make([]string, 0, 4)
	if u.RawQuery != "" {
		for _, segment := range strings.Split(u.RawQuery, "&") {
			key, _, _ := strings.Cut(segment, "=")
			if name, err := url.QueryUnescape(key); err == nil && name == param {
				continue
			}
			kept = append(kept, segment)
		}
	}
	kept = append(kept, url.QueryEscape(param)+"="+strconv.Itoa(page))
	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false

	return u.String(), nil
}
