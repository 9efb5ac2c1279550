package audithook_test

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

	audithook "github.com/xraph/tenure/audit_hook"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/plugin"
	"github.com/xraph/tenure/types"
	"github.com/xraph/tenure/voucher"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) Record(_ context.Context, e *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}

func TestRecordsLifecycle(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s, audithook.WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, ext.OnAssetIssued(ctx, plugin.Issued{AssetID: 7, Owner: owner, Price: types.New(10, "wei")}))
	require.NoError(t, ext.OnSubscriptionUpdated(ctx, event.New(7, time.Unix(100, 0), event.ReasonRenewal, time.Unix(50, 0))))
	require.NoError(t, ext.OnSubscriptionUpdated(ctx, event.New(7, time.Time{}, event.ReasonCancellation, time.Unix(60, 0))))
	require.NoError(t, ext.OnSubscriptionCanceled(ctx, 7, owner))
	require.NoError(t, ext.OnPauseChanged(ctx, true))

	assert.Equal(t, []string{
		audithook.ActionAssetIssued,
		audithook.ActionSubscriptionRenewed,
		audithook.ActionSubscriptionCanceled,
		audithook.ActionSystemPaused,
	}, s.actions())

	issued := s.events[0]
	assert.Equal(t, "7", issued.ResourceID)
	assert.Equal(t, audithook.ResourceAsset, issued.Resource)
	assert.Equal(t, owner.Hex(), issued.Metadata["owner"])
}

func TestRejectionCarriesReason(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s)

	require.NoError(t, ext.OnVoucherRejected(context.Background(), voucher.Voucher{}, errors.New("tenure: voucher expired")))
	require.Len(t, s.events, 1)
	assert.Equal(t, audithook.OutcomeFailure, s.events[0].Outcome)
	assert.Equal(t, "tenure: voucher expired", s.events[0].Reason)
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()

	s := &sink{}
	ext := audithook.New(s, audithook.WithEnabledActions(audithook.ActionSystemPaused))
	require.NoError(t, ext.OnPauseChanged(ctx, false))
	require.NoError(t, ext.OnPauseChanged(ctx, true))
	assert.Equal(t, []string{audithook.ActionSystemPaused}, s.actions())

	s = &sink{}
	ext = audithook.New(s, audithook.WithDisabledActions(audithook.ActionSystemPaused))
	require.NoError(t, ext.OnPauseChanged(ctx, true))
	require.NoError(t, ext.OnPauseChanged(ctx, false))
	assert.Equal(t, []string{audithook.ActionSystemUnpaused}, s.actions())
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}), audithook.WithLogger(zaptest.NewLogger(t)))

	assert.NoError(t, ext.OnAssetDestroyed(context.Background(), 1, common.Address{}))
}
