package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/url-preloader/pkg/client"
	"github.com/Sternrassler/url-preloader/pkg/config"
	"github.com/Sternrassler/url-preloader/pkg/headers"
	"github.com/Sternrassler/url-preloader/pkg/lease"
	"github.com/Sternrassler/url-preloader/pkg/logging"
	"github.com/Sternrassler/url-preloader/pkg/metrics"
	"github.com/Sternrassler/url-preloader/pkg/pagination"
	"github.com/Sternrassler/url-preloader/pkg/preload"
	"github.com/Sternrassler/url-preloader/pkg/progress"
	"github.com/Sternrassler/url-preloader/pkg/scheduler"
	"github.com/Sternrassler/url-preloader/pkg/warmer"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		log.Error().Err(err).Msg("Preloader failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging())
	logger := logging.NewLogger("preloader")

	httpClient, err := client.New(cfg.Client())
	if err != nil {
		return fmt.Errorf("create http client: %w", err)
	}
	defer httpClient.Close()

	headerLogger := logging.NewLogger("headers")
	apiHeaders := headers.Build(cfg.APICustomHeaders, headerLogger)
	frontendHeaders := headers.Build(cfg.FrontendCustomHeaders, headerLogger)

	fetcher := pagination.NewFetcher(httpClient, apiHeaders, pagination.DefaultConfig(), logging.NewLogger("fetcher"))
	preloader := preload.New(
		httpClient,
		frontendHeaders,
		progress.New(progress.Options{Disabled: cfg.ProgressDisabled()}),
		logging.NewLogger("preload"),
	)

	var redisClient *redis.Client
	var locker warmer.Locker
	if cfg.RedisURL != "" {
		redisClient, err = connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		owner := leaseOwner()
		l := lease.New(redisClient, lease.DefaultKey, cfg.Interval(), owner, logging.NewLogger("lease"))
		l.SetTTLFunc(cfg.LeaseTTL)
		locker = l
		logger.Info().Str("owner", owner).Dur("ttl", l.TTL(time.Now())).Msg("Cycle lease enabled")
	}

	w := warmer.New(cfg.APIURL, fetcher, preloader, locker, logging.NewLogger("warmer"))

	if cfg.MetricsAddr != "" {
		srv := newServer(cfg.MetricsAddr, redisClient)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("Starting metrics server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	schedule, err := cfg.Schedule()
	if err != nil {
		return err
	}

	logger.Info().
		Str("api_url", cfg.APIURL).
		Int("interval_minutes", cfg.PreloadInterval).
		Str("cron", cfg.PreloadCron).
		Msg("Preloader configured")

	s := scheduler.New(func(ctx context.Context) {
		w.RunCycle(ctx)
	}, schedule, logging.NewLogger("scheduler"))

	return s.Run(ctx)
}

func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return redisClient, nil
}

// leaseOwner identifies this instance in the lease value.
func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "/" + uuid.NewString()
}

func newServer(addr string, redisClient *redis.Client) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.Handle("/metrics", metrics.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports whether the lease backend answers. Without Redis
// the preloader is always ready.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, fmt.Sprintf("redis unavailable: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}
