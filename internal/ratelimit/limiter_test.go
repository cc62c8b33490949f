package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter needs a Redis on localhost:6379 and uses DB 15.
func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	client.FlushDB(ctx)
	return NewLimiter(client, nil)
}

func TestAllow_WithinAndOverLimit(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}

	for i := range 3 {
		ok, err := l.Allow(ctx, "p1", rule)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, err := l.Allow(ctx, "p1", rule)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other players have their own window.
	ok, err = l.Allow(ctx, "p2", rule)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRetryAfter(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	// No window open yet.
	assert.Equal(t, RuleJoin.Window, l.RetryAfter(ctx, "p1", RuleJoin))

	_, err := l.Allow(ctx, "p1", RuleJoin)
	require.NoError(t, err)

	retry := l.RetryAfter(ctx, "p1", RuleJoin)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, RuleJoin.Window)
}
