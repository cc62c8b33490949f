package lease

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return client
}

func TestLease_Exclusive(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	a := New(client, "test:leader", time.Second, nil)
	b := New(client, "test:leader", time.Second, nil)
	require.NotEqual(t, a.Owner(), b.Owner())

	require.NoError(t, a.TryAcquire(ctx))
	assert.ErrorIs(t, b.TryAcquire(ctx), ErrNotAcquired)

	assert.ErrorIs(t, b.Extend(ctx), ErrNotHeld)
	assert.ErrorIs(t, b.Release(ctx), ErrNotHeld)
	require.NoError(t, a.Extend(ctx))

	require.NoError(t, a.Release(ctx))
	require.NoError(t, b.TryAcquire(ctx))
}

func TestLease_AcquireWaitsForExpiry(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a := New(client, "test:leader", 200*time.Millisecond, nil)
	b := New(client, "test:leader", 200*time.Millisecond, nil)
	require.NoError(t, a.TryAcquire(ctx))

	require.NoError(t, b.Acquire(ctx, 50*time.Millisecond))
	assert.ErrorIs(t, a.Extend(ctx), ErrNotHeld)
}

func TestLease_KeepReportsLoss(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a := New(client, "test:leader", 300*time.Millisecond, nil)
	require.NoError(t, a.TryAcquire(ctx))

	client.Set(ctx, "test:leader", "someone-else", time.Minute)
	assert.ErrorIs(t, a.Keep(ctx), ErrNotHeld)
}
