package mongo_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/store/mongo"
	"github.com/xraph/tenure/store/storetest"
)

// Set TENURE_TEST_MONGO_URI to a replica set to run these tests.
func newStore(t *testing.T) store.Store {
	t.Helper()

	uri := os.Getenv("TENURE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TENURE_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	s, err := mongo.Open(ctx, uri, "tenure_test")
	require.NoError(t, err)
	require.NoError(t, mongodriver.Unwrap(s.DB()).Database().Drop(ctx))
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newStore)
}
