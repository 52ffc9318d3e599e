// Package lease coordinates several preloader instances through Redis so
// only one of them runs a given cycle.
//
// A lease is a key holding the owner's id with a TTL running until the next
// scheduled cycle. It is never released: it expires on its own, which keeps
// other instances from starting a second cycle in the same slot. The owner
// may take its own lease again, so a single instance never skips a cycle.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultKey is the Redis key of the cycle lease.
const DefaultKey = "url-preloader:cycle-lease"

// acquireScript sets the lease when it is free or already held by the caller.
var acquireScript = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if holder == false or holder == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

var leaseAcquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "preload_lease_acquisitions_total",
	Help: "Cycle lease acquisition attempts by result",
}, []string{"result"}) // "acquired", "held", "error"

// Lease is a TTL-bound Redis lock owned by one instance.
type Lease struct {
	redis  *redis.Client
	key    string
	ttl    func(now time.Time) time.Duration
	owner  string
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a lease on key held for ttl by owner.
func New(redisClient *redis.Client, key string, ttl time.Duration, owner string, logger zerolog.Logger) *Lease {
	if key == "" {
		key = DefaultKey
	}
	return &Lease{
		redis:  redisClient,
		key:    key,
		ttl:    func(time.Time) time.Duration { return ttl },
		owner:  owner,
		logger: logger,
		now:    time.Now,
	}
}

// SetTTLFunc makes the lease TTL depend on the acquisition time, e.g. the
// time left until the next scheduled cycle.
func (l *Lease) SetTTLFunc(fn func(now time.Time) time.Duration) {
	l.ttl = fn
}

// TTL returns the TTL an acquisition at now would set.
func (l *Lease) TTL(now time.Time) time.Duration {
	ttl := l.ttl(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}

// TryAcquire sets the lease if nobody or this owner holds it. It returns
// false when another owner holds an unexpired lease.
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	ttl := l.TTL(l.now())
	ok, err := acquireScript.Run(ctx, l.redis, []string{l.key}, l.owner, ttl.Milliseconds()).Bool()
	if err != nil {
		leaseAcquisitionsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}

	if !ok {
		leaseAcquisitionsTotal.WithLabelValues("held").Inc()
		holder, err := l.Holder(ctx)
		if err != nil {
			l.logger.Debug().Err(err).Str("key", l.key).Msg("Could not read lease holder")
		}
		l.logger.Debug().Str("key", l.key).Str("holder", holder).Msg("Lease held by another instance")
		return false, nil
	}

	leaseAcquisitionsTotal.WithLabelValues("acquired").Inc()
	l.logger.Debug().
		Str("key", l.key).
		Str("owner", l.owner).
		Dur("ttl", ttl).
		Msg("Lease acquired")
	return true, nil
}

// Holder returns the current owner, or "" when the lease is free.
func (l *Lease) Holder(ctx context.Context) (string, error) {
	holder, err := l.redis.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get lease holder: %w", err)
	}
	return holder, nil
}

// Key returns the Redis key of the lease.
func (l *Lease) Key() string {
	return l.key
}

// Owner returns the owner value written on acquisition.
func (l *Lease) Owner() string {
	return l.owner
}
