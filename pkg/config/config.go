// Package config loads the preloader configuration from the environment,
// an optional .env file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/url-preloader/pkg/client"
	"github.com/Sternrassler/url-preloader/pkg/logging"
	"github.com/Sternrassler/url-preloader/pkg/scheduler"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	cronlib "github.com/robfig/cron/v3"
)

// DefaultEnvFile is read when neither --env-file nor ENV_FILE is set.
const DefaultEnvFile = ".env"

// Config is the full runtime configuration.
type Config struct {
	APIURL                string `name:"api-url" help:"Paginated API listing the URLs to preload." env:"API_URL" default:"http://example.com/api/urls"`
	APICustomHeaders      string `name:"api-custom-headers" help:"Extra API headers as key=value,key=value." env:"API_CUSTOM_HEADERS"`
	FrontendCustomHeaders string `name:"frontend-custom-headers" help:"Extra preload headers as key=value,key=value." env:"FRONTEND_CUSTOM_HEADERS"`

	PreloadInterval int    `name:"preload-interval" help:"Minutes between the end of a cycle and the next one." env:"PRELOAD_INTERVAL" default:"15"`
	PreloadCron     string `name:"preload-cron" help:"Cron expression overriding the interval." env:"PRELOAD_CRON"`

	DisableProgress string        `name:"disable-progress" help:"Hide the progress bar (true, 1, t)." env:"DISABLE_PROGRESS,DISABLE_TQDM" default:"false"`
	RequestTimeout  time.Duration `name:"request-timeout" help:"Timeout of a single HTTP attempt." env:"REQUEST_TIMEOUT" default:"30s"`

	LogLevel  string `name:"log-level" help:"debug, info, warn or error." env:"LOG_LEVEL" default:"info"`
	LogPretty bool   `name:"log-pretty" help:"Human-readable console logs." env:"LOG_PRETTY"`

	RedisURL    string `name:"redis-url" help:"Redis URL for the cycle lease shared by several instances." env:"REDIS_URL"`
	MetricsAddr string `name:"metrics-addr" help:"Listen address for /metrics and /health." env:"METRICS_ADDR"`

	EnvFile string `name:"env-file" help:"Dotenv file loaded before parsing." env:"ENV_FILE" default:".env"`
}

// Load reads the env file, then parses args and the environment into a
// validated Config. Variables already set in the environment win over the
// env file.
func Load(args []string, options ...kong.Option) (*Config, error) {
	if err := LoadDotEnv(envFileFromArgs(args)); err != nil {
		return nil, err
	}

	var cfg Config
	options = append([]kong.Option{
		kong.Name("url-preloader"),
		kong.Description("Keeps frontend caches warm by requesting every URL a paginated API lists."),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	}, options...)

	parser, err := kong.New(&cfg, options...)
	if err != nil {
		return nil, fmt.Errorf("build parser: %w", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads path into the environment. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// envFileFromArgs finds the env file before kong runs, so its values can
// feed the env tags.
func envFileFromArgs(args []string) string {
	for i, arg := range args {
		if value, ok := strings.CutPrefix(arg, "--env-file="); ok {
			return value
		}
		if arg == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if value, ok := os.LookupEnv("ENV_FILE"); ok {
		return value
	}
	return DefaultEnvFile
}

// Validate checks values kong cannot check on its own.
func (c *Config) Validate() error {
	if c.PreloadInterval < 1 {
		return fmt.Errorf("preload interval must be >= 1 minute (got %d)", c.PreloadInterval)
	}

	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api url %q: %w", c.APIURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api url %q: must be an absolute http(s) url", c.APIURL)
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must be >= 0 (got %s)", c.RequestTimeout)
	}

	if _, err := c.Schedule(); err != nil {
		return err
	}

	return nil
}

// Interval returns the preload interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.PreloadInterval) * time.Minute
}

// Schedule returns the cycle schedule: the cron expression if set,
// otherwise the interval.
func (c *Config) Schedule() (cronlib.Schedule, error) {
	return scheduler.NewSchedule(c.Interval(), c.PreloadCron)
}

// ProgressDisabled reports whether the progress bar is turned off. Only
// "true", "1" and "t" (any case) disable it.
func (c *Config) ProgressDisabled() bool {
	switch strings.ToLower(strings.TrimSpace(c.DisableProgress)) {
	case "true", "1", "t":
		return true
	default:
		return false
	}
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// Client returns the HTTP client configuration.
func (c *Config) Client() client.Config {
	cfg := client.DefaultConfig()
	cfg.Timeout = c.RequestTimeout
	return cfg
}

// LeaseTTL is how long a cycle lease taken at now is held: the interval,
// or the time left until the next cron fire when a cron expression is set.
func (c *Config) LeaseTTL(now time.Time) time.Duration {
	if c.PreloadCron == "" {
		return c.Interval()
	}
	schedule, err := c.Schedule()
	if err != nil {
		return c.Interval()
	}
	return schedule.Next(now).Sub(now)
}
