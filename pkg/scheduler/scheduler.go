// Package scheduler runs the preload cycle forever on a fixed interval or a
// cron expression. Cycles never overlap: the next due time is computed from
// the moment the previous cycle finished.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	cronlib "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultTick is how often the loop checks whether a cycle is due.
const DefaultTick = time.Second

var nextRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "preload_next_cycle_timestamp_seconds",
	Help: "Unix time at which the next preload cycle is due",
})

var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Cycle is one unit of scheduled work. It runs synchronously.
type Cycle func(ctx context.Context)

// NewSchedule returns a cron schedule for expr, or a constant delay of
// interval when expr is empty.
func NewSchedule(interval time.Duration, expr string) (cronlib.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr != "" {
		schedule, err := parser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
		}
		return schedule, nil
	}

	if interval < time.Second {
		return nil, fmt.Errorf("interval must be >= 1s (got %s)", interval)
	}
	return cronlib.Every(interval), nil
}

// Scheduler drives a Cycle.
type Scheduler struct {
	cycle    Cycle
	schedule cronlib.Schedule
	tick     time.Duration
	logger   zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a scheduler running cycle on schedule.
func New(cycle Cycle, schedule cronlib.Schedule, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cycle:    cycle,
		schedule: schedule,
		tick:     DefaultTick,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Run executes one cycle immediately and then every time the schedule is
// due. It returns nil once ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cycle == nil || s.schedule == nil {
		return fmt.Errorf("scheduler needs a cycle and a schedule")
	}

	s.logger.Info().Dur("tick", s.tick).Msg("Starting preload loop")

	if ctx.Err() != nil {
		return nil
	}
	next := s.runCycle(ctx)

	for {
		if err := s.sleep(ctx, s.tick); err != nil {
			s.logger.Info().Msg("Preload loop stopped")
			return nil
		}

		if s.now().Before(next) {
			continue
		}
		next = s.runCycle(ctx)
	}
}

// runCycle runs the cycle and returns the next due time.
func (s *Scheduler) runCycle(ctx context.Context) time.Time {
	s.cycle(ctx)

	next := s.schedule.Next(s.now())
	nextRunTimestamp.Set(float64(next.Unix()))
	s.logger.Debug().Time("next_run", next).Msg("Next preload cycle scheduled")
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
