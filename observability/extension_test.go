package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/observability"
	"github.com/xraph/tenure/plugin"
	"github.com/xraph/tenure/replay"
	"github.com/xraph/tenure/subscription"
	"github.com/xraph/tenure/types"
	"github.com/xraph/tenure/voucher"
)

func TestMetricsExtensionCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	ctx := context.Background()

	record, err := subscription.Open(1, time.Unix(0, 0), 1000*time.Second, 500*time.Second, types.New(1000, "wei"))
	require.NoError(t, err)

	require.NoError(t, m.OnAssetIssued(ctx, plugin.Issued{AssetID: 1, Price: types.New(1000, "wei"), Record: record}))
	require.NoError(t, m.OnVoucherRejected(ctx, voucher.Voucher{}, replay.ErrReplayedSignature))
	require.NoError(t, m.OnSubscriptionUpdated(ctx, event.New(1, time.Unix(1200, 0), event.ReasonRenewal, time.Unix(400, 0))))
	require.NoError(t, m.OnSubscriptionUpdated(ctx, event.New(1, time.Time{}, event.ReasonCancellation, time.Unix(500, 0))))
	require.NoError(t, m.OnSubscriptionCanceled(ctx, 1, common.Address{}))
	require.NoError(t, m.OnPauseChanged(ctx, true))

	assert.InDelta(t, 1, testutil.ToFloat64(m.AssetsIssued.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.VouchersRejected.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.VouchersReplayed.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SubscriptionsRenewed.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SubscriptionsCanceled.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Paused.(prometheus.Gauge)), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "tenure_asset_issued_total")
	assert.Contains(t, names, "tenure_paused")
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	f := observability.NewPrometheusFactory(prometheus.NewRegistry())
	assert.Same(t, f.Counter("a.b"), f.Counter("a.b"))
}
