package lease

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestNew_DefaultKey(t *testing.T) {
	l := New(nil, "", time.Minute, "owner-1", zerolog.Nop())

	if l.Key() != DefaultKey {
		t.Errorf("Key() = %q, want %q", l.Key(), DefaultKey)
	}
	if l.Owner() != "owner-1" {
		t.Errorf("Owner() = %q, want owner-1", l.Owner())
	}
}

func TestTryAcquire_RedisUnavailable(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer redisClient.Close()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	l := New(redisClient, "test:lease", time.Minute, "owner-1", logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := l.TryAcquire(ctx)
	if err == nil {
		t.Fatal("expected error when redis is unreachable")
	}
	if ok {
		t.Error("TryAcquire() = true on error, want false")
	}
	if !strings.Contains(err.Error(), "acquire lease test:lease") {
		t.Errorf("error = %v, want key in message", err)
	}
}

func TestTTL_UsesTTLFunc(t *testing.T) {
	l := New(nil, "", 15*time.Minute, "owner-1", zerolog.Nop())
	now := time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC)

	if got := l.TTL(now); got != 15*time.Minute {
		t.Errorf("TTL() = %v, want 15m", got)
	}

	l.SetTTLFunc(func(at time.Time) time.Duration {
		return at.Truncate(5 * time.Minute).Add(5 * time.Minute).Sub(at)
	})
	if got := l.TTL(now); got != 4*time.Minute {
		t.Errorf("TTL() = %v, want 4m", got)
	}

	l.SetTTLFunc(func(time.Time) time.Duration { return 0 })
	if got := l.TTL(now); got <= 0 {
		t.Errorf("TTL() = %v, want a positive floor", got)
	}
}
