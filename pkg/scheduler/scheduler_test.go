package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock advances on every sleep and lets cycles take simulated time.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// newTestScheduler runs cycle on a fake clock until maxTicks sleeps elapsed.
func newTestScheduler(t *testing.T, interval time.Duration, cycle Cycle, maxTicks int) (*Scheduler, *fakeClock, context.Context) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	schedule, err := NewSchedule(interval, "")
	if err != nil {
		t.Fatalf("NewSchedule() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(cycle, schedule, zerolog.Nop())
	s.now = clock.Now
	ticks := 0
	s.sleep = func(ctx context.Context, d time.Duration) error {
		ticks++
		if ticks > maxTicks {
			cancel()
			return ctx.Err()
		}
		clock.advance(d)
		return nil
	}
	return s, clock, ctx
}

func TestRun_ImmediateFirstCycle(t *testing.T) {
	var runs []time.Time
	var clock *fakeClock
	s, clock, ctx := newTestScheduler(t, time.Minute, func(ctx context.Context) {
		runs = append(runs, clock.Now())
	}, 0)

	start := clock.Now()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if !runs[0].Equal(start) {
		t.Errorf("first run at %v, want %v", runs[0], start)
	}
}

func TestRun_Interval(t *testing.T) {
	var runs []time.Time
	var clock *fakeClock
	// 3 minutes of 1s ticks
	s, clock, ctx := newTestScheduler(t, time.Minute, func(ctx context.Context) {
		runs = append(runs, clock.Now())
	}, 180)

	start := clock.Now()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []time.Time{start, start.Add(time.Minute), start.Add(2 * time.Minute), start.Add(3 * time.Minute)}
	if len(runs) != len(want) {
		t.Fatalf("runs = %v, want %v", runs, want)
	}
	for i := range want {
		if !runs[i].Equal(want[i]) {
			t.Errorf("run %d at %v, want %v", i, runs[i], want[i])
		}
	}
}

func TestRun_NextDueFromFinishTime(t *testing.T) {
	var runs []time.Time
	var clock *fakeClock
	// each cycle takes 10 minutes on a 15 minute interval
	s, clock, ctx := newTestScheduler(t, 15*time.Minute, func(ctx context.Context) {
		runs = append(runs, clock.Now())
		clock.advance(10 * time.Minute)
	}, 30*60)

	start := clock.Now()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(runs) < 2 {
		t.Fatalf("runs = %v, want at least 2", runs)
	}
	if gap := runs[1].Sub(runs[0]); gap != 25*time.Minute {
		t.Errorf("gap between starts = %v, want 25m (10m cycle + 15m interval)", gap)
	}
	if !runs[0].Equal(start) {
		t.Errorf("first run at %v, want %v", runs[0], start)
	}
}

func TestRun_NoOverlap(t *testing.T) {
	running := false
	overlaps := 0
	runs := 0
	var clock *fakeClock
	// cycle longer than the interval
	s, clock, ctx := newTestScheduler(t, time.Minute, func(ctx context.Context) {
		if running {
			overlaps++
		}
		running = true
		runs++
		clock.advance(5 * time.Minute)
		running = false
	}, 600)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if overlaps != 0 {
		t.Errorf("overlaps = %d, want 0", overlaps)
	}
	if runs < 2 {
		t.Errorf("runs = %d, want at least 2", runs)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	runs := 0
	schedule, _ := NewSchedule(time.Minute, "")
	s := New(func(ctx context.Context) { runs++ }, schedule, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if runs != 0 {
		t.Errorf("runs = %d, want 0", runs)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	schedule, _ := NewSchedule(time.Hour, "")
	ctx, cancel := context.WithCancel(context.Background())

	s := New(func(ctx context.Context) { cancel() }, schedule, zerolog.Nop())
	s.tick = time.Millisecond

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_MissingCycle(t *testing.T) {
	schedule, _ := NewSchedule(time.Minute, "")
	s := New(nil, schedule, zerolog.Nop())

	if err := s.Run(context.Background()); err == nil {
		t.Error("expected error without a cycle")
	}
}

func TestNewSchedule(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 7, 30, 0, time.UTC)

	tests := []struct {
		name     string
		interval time.Duration
		expr     string
		want     time.Time
		wantErr  string
	}{
		{
			name:     "interval",
			interval: 15 * time.Minute,
			want:     base.Add(15 * time.Minute),
		},
		{
			name: "cron expression",
			expr: "0 * * * *",
			want: time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "descriptor",
			expr: "@every 5m",
			want: base.Add(5 * time.Minute),
		},
		{
			name:     "expression wins over interval",
			interval: time.Minute,
			expr:     "*/30 * * * *",
			want:     time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			name:    "invalid expression",
			expr:    "every tuesday",
			wantErr: "parse cron expression",
		},
		{
			name:     "interval too small",
			interval: 0,
			wantErr:  "interval must be >= 1s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule, err := NewSchedule(tt.interval, tt.expr)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("NewSchedule() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSchedule() error = %v", err)
			}
			if got := schedule.Next(base); !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", base, got, tt.want)
			}
		})
	}
}
