// Package lease elects the single matchmaker instance allowed to run the
// tick loop. The lease is a Redis key holding the owner's id with a TTL; only
// the owner may extend or release it.
package lease

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultKey is the Redis key of the matchmaking leader lease.
const DefaultKey = "matchmaking:leader"

var (
	ErrNotAcquired = errors.New("lease not acquired")
	ErrNotHeld     = errors.New("lease not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Lease is a single lease key contended by matchmaker instances.
type Lease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a lease on key. Each instance gets a random owner id.
func New(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *Lease {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lease{
		client: client,
		key:    key,
		owner:  uuid.NewString(),
		ttl:    ttl,
		logger: logger,
	}
}

// Owner returns this instance's owner id.
func (l *Lease) Owner() string {
	return l.owner
}

// TryAcquire takes the lease if nobody holds it.
func (l *Lease) TryAcquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return eris.Wrapf(err, "failed to acquire lease %s", l.key)
	}
	if !ok {
		return ErrNotAcquired
	}
	return nil
}

// Extend renews the lease for another TTL.
func (l *Lease) Extend(ctx context.Context) error {
	res, err := extendScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return eris.Wrapf(err, "failed to extend lease %s", l.key)
	}
	if res == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release gives the lease up if this instance holds it.
func (l *Lease) Release(ctx context.Context) error {
	res, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int()
	if err != nil {
		return eris.Wrapf(err, "failed to release lease %s", l.key)
	}
	if res == 0 {
		return ErrNotHeld
	}
	return nil
}

// Acquire blocks until the lease is taken or ctx is done, retrying every
// retry interval.
func (l *Lease) Acquire(ctx context.Context, retry time.Duration) error {
	for {
		err := l.TryAcquire(ctx)
		if err == nil {
			l.logger.Info("leader lease acquired", zap.String("key", l.key), zap.String("owner", l.owner))
			return nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			l.logger.Warn("leader lease attempt failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

// Keep extends the lease every TTL/3 until ctx is done or the lease is lost.
// It returns ErrNotHeld when another instance took over, and nil on ctx
// cancellation.
func (l *Lease) Keep(ctx context.Context) error {
	ticker := time.NewTicker(max(l.ttl/3, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := l.Extend(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrNotHeld):
				l.logger.Error("leader lease lost", zap.String("key", l.key))
				return err
			default:
				// Transient Redis failure: keep trying until the TTL runs out.
				l.logger.Warn("leader lease renewal failed", zap.Error(err))
			}
		}
	}
}
