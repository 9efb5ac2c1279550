package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/store/sqlite"
	"github.com/xraph/tenure/store/storetest"
)

func newStore(t *testing.T) store.Store {
	t.Helper()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "tenure.db")
	s, err := sqlite.Open(ctx, dsn, sqlite.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newStore)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "tenure.db")

	s, err := sqlite.Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	n, err := s.NextAssetID(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetPaused(ctx, true))
	require.NoError(t, s.Close())

	s, err = sqlite.Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	next, err := s.NextAssetID(ctx)
	require.NoError(t, err)
	assert.Equal(t, n+1, next)

	paused, err := s.GetPaused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)
}

func TestConcurrentTransactionsQueue(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	const workers = 8
	ids := make(chan asset.ID, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(ctx context.Context) error {
				n, err := s.NextAssetID(ctx)
				if err != nil {
					return err
				}
				ids <- n
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[asset.ID]bool)
	for n := range ids {
		assert.False(t, seen[n], "duplicate id %d", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}
