package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/plugin"
)

type recorder struct {
	name string

	mu      sync.Mutex
	updates []*event.SubscriptionUpdate
	issued  []asset.ID
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnSubscriptionUpdated(_ context.Context, u *event.SubscriptionUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *recorder) OnAssetIssued(_ context.Context, issued plugin.Issued) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued = append(r.issued, issued.AssetID)
	return errors.New("ignored")
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnAssetDestroyed(ctx context.Context, _ asset.ID, _ common.Address) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func TestRegisterAndDispatch(t *testing.T) {
	reg := plugin.NewRegistry().WithLogger(zaptest.NewLogger(t))
	rec := &recorder{name: "rec"}
	require.NoError(t, reg.Register(rec))

	assert.Equal(t, 1, reg.Count())
	assert.Same(t, rec, reg.Get("rec"))
	assert.Nil(t, reg.Get("missing"))

	ctx := context.Background()
	update := event.New(3, time.Unix(1200, 0), event.ReasonRenewal, time.Unix(400, 0))
	reg.EmitSubscriptionUpdated(ctx, update)
	reg.EmitAssetIssued(ctx, plugin.Issued{AssetID: 3})

	// Hooks the plugin does not implement are skipped.
	reg.EmitAssetDestroyed(ctx, 3, common.Address{})
	reg.EmitPauseChanged(ctx, true)

	require.Len(t, rec.updates, 1)
	assert.Same(t, update, rec.updates[0])
	assert.Equal(t, []asset.ID{3}, rec.issued)
}

func TestDuplicateRegistration(t *testing.T) {
	reg := plugin.NewRegistry()
	require.NoError(t, reg.Register(&recorder{name: "a"}))
	assert.Error(t, reg.Register(&recorder{name: "a"}))
	assert.Len(t, reg.List(), 1)
}

func TestHookTimeout(t *testing.T) {
	reg := plugin.NewRegistry().WithTimeout(10 * time.Millisecond)
	require.NoError(t, reg.Register(slow{}))

	start := time.Now()
	reg.EmitAssetDestroyed(context.Background(), 1, common.Address{})
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
