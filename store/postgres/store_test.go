package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xraph/grove/drivers/pgdriver"
	"go.uber.org/zap/zaptest"

	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/store/postgres"
	"github.com/xraph/tenure/store/storetest"
)

// Set TENURE_TEST_POSTGRES_DSN to run against a disposable database.
func newStore(t *testing.T) store.Store {
	t.Helper()

	dsn := os.Getenv("TENURE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TENURE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := postgres.Open(ctx, dsn, postgres.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	_, err = pgdriver.Unwrap(s.DB()).NewRaw(`
TRUNCATE tenure_counters, tenure_assets, tenure_operators, tenure_settings,
         tenure_subscriptions, tenure_redemptions, tenure_balances,
         tenure_receipts, tenure_events RESTART IDENTITY`).Exec(ctx)
	require.NoError(t, err)

	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newStore)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}
