// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var output io.Writer = out
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

type cycleIDKey struct{}

// WithCycleID returns a context carrying the id of the running cycle.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, id)
}

// CycleID returns the cycle id stored in ctx.
func CycleID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(cycleIDKey{}).(string)
	return id, ok && id != ""
}

// ForContext returns logger with the cycle_id field of ctx, if any.
func ForContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if id, ok := CycleID(ctx); ok {
		return logger.With().Str("cycle_id", id).Logger()
	}
	return logger
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - Page requests and their item counts
//   - Preload responses (status, cache status header)
//   - Retry backoff decisions
//
// Info: normal operation
//   - Loop start, cycle start and cycle summary
//   - Fetch complete
//
// Warn: degraded but continuing
//   - Retry attempts and exhaustion
//   - Items without a url field
//   - Lease backend unavailable (cycle runs anyway)
//
// Error: a unit of work failed
//   - Invalid custom header segment
//   - Fetch stopped early (request or decode failure)
//   - A single URL failed to preload
//
// Context Fields:
//   - component: emitting package
//   - cycle_id: id shared by all lines of one preload cycle
//   - url / page / total_pages: request identity
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network
//   - duration: elapsed time
