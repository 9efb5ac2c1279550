package redislock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xraph/tenure/lock"
	"github.com/xraph/tenure/lock/redislock"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redislock.Locker) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, redislock.New(client,
		redislock.WithTTL(time.Second),
		redislock.WithRetryInterval(5*time.Millisecond),
		redislock.WithLogger(zaptest.NewLogger(t)),
	)
}

func TestLockAndRelease(t *testing.T) {
	mr, l := setup(t)
	ctx := context.Background()

	release, err := l.Lock(ctx, "asset:7")
	require.NoError(t, err)
	assert.True(t, mr.Exists("tenure:lock:asset:7"))

	release()
	assert.False(t, mr.Exists("tenure:lock:asset:7"))
}

func TestLockContended(t *testing.T) {
	_, l := setup(t)
	ctx := context.Background()

	release, err := l.Lock(ctx, "issuance")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "issuance")
	assert.ErrorIs(t, err, lock.ErrLockNotAcquired)

	release()

	again, err := l.Lock(ctx, "issuance")
	require.NoError(t, err)
	again()
}

func TestReleaseAfterTakeover(t *testing.T) {
	mr, l := setup(t)
	ctx := context.Background()

	release, err := l.Lock(ctx, "asset:1")
	require.NoError(t, err)

	// Lease expires and another holder takes the key.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("tenure:lock:asset:1", "someone-else"))

	release()

	got, err := mr.Get("tenure:lock:asset:1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
