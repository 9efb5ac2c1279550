package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tenure/lock"
)

func TestLocalExclusive(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "asset:1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestLocalIndependentKeys(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	r1, err := l.Lock(ctx, "asset:1")
	require.NoError(t, err)
	defer r1()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	r2, err := l.Lock(ctx2, "asset:2")
	require.NoError(t, err)
	r2()
}

func TestLocalContextCancel(t *testing.T) {
	l := lock.NewLocal()

	release, err := l.Lock(context.Background(), "issuance")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "issuance")
	assert.ErrorIs(t, err, lock.ErrLockNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op

	again, err := l.Lock(context.Background(), "issuance")
	require.NoError(t, err)
	again()
}
