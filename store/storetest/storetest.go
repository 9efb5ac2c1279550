// Package storetest is a conformance suite run against every store.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/id"
	"github.com/xraph/tenure/payment"
	"github.com/xraph/tenure/replay"
	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/subscription"
	"github.com/xraph/tenure/types"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

var errBoom = errors.New("boom")

// Run exercises s. The store must be empty and migrated.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"AssetLifecycle", testAssetLifecycle},
		{"Operators", testOperators},
		{"Paused", testPaused},
		{"SubscriptionWholeRecord", testSubscriptionWholeRecord},
		{"Redemptions", testRedemptions},
		{"Payments", testPayments},
		{"Events", testEvents},
		{"RollbackDiscardsEverything", testRollback},
		{"NestedTxJoinsOuter", testNested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func ts(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func testAssetLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, err := s.NextAssetID(ctx)
	require.NoError(t, err)
	second, err := s.NextAssetID(ctx)
	require.NoError(t, err)
	assert.Equal(t, asset.ID(1), first)
	assert.Equal(t, asset.ID(2), second)

	a := &asset.Asset{Entity: types.NewEntity(ts(10)), ID: first, Owner: alice, MetadataRef: "ipfs://a"}
	require.NoError(t, s.InsertAsset(ctx, a))
	require.NoError(t, s.InsertAsset(ctx, &asset.Asset{Entity: types.NewEntity(ts(10)), ID: second, Owner: alice}))

	got, err := s.GetAsset(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, alice, got.Owner)
	assert.Equal(t, "ipfs://a", got.MetadataRef)

	ids, err := s.ListAssetsByOwner(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []asset.ID{first, second}, ids)

	got.Owner = bob
	got.Approved = alice
	require.NoError(t, s.UpdateAsset(ctx, got))
	got, err = s.GetAsset(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, bob, got.Owner)
	assert.Equal(t, alice, got.Approved)

	require.NoError(t, s.DeleteAsset(ctx, first))
	_, err = s.GetAsset(ctx, first)
	assert.ErrorIs(t, err, asset.ErrAssetNotFound)
	assert.ErrorIs(t, s.DeleteAsset(ctx, first), asset.ErrAssetNotFound)
	assert.ErrorIs(t, s.UpdateAsset(ctx, got), asset.ErrAssetNotFound)
}

func testOperators(t *testing.T, s store.Store) {
	ctx := context.Background()

	ok, err := s.IsOperator(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetOperator(ctx, alice, bob, true))
	ok, err = s.IsOperator(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsOperator(ctx, bob, alice)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetOperator(ctx, alice, bob, false))
	ok, err = s.IsOperator(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testPaused(t *testing.T, s store.Store) {
	ctx := context.Background()

	paused, err := s.GetPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	require.NoError(t, s.SetPaused(ctx, true))
	paused, err = s.GetPaused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)
}

func testSubscriptionWholeRecord(t *testing.T, s store.Store) {
	ctx := context.Background()

	missing, err := s.GetSubscription(ctx, 9)
	require.NoError(t, err)
	assert.False(t, missing.Exists())
	assert.True(t, missing.ExpiresAt.IsZero())
	assert.True(t, missing.RenewableUntil.IsZero())
	assert.True(t, missing.UnitPrice.IsZero())

	r, err := subscription.Open(9, ts(0), 1000*time.Second, 500*time.Second, types.New(1000, "wei"))
	require.NoError(t, err)
	require.NoError(t, s.PutSubscription(ctx, r))

	got, err := s.GetSubscription(ctx, 9)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(ts(1000)))
	assert.True(t, got.RenewableUntil.Equal(ts(500)))
	assert.Equal(t, types.New(1, "wei"), got.UnitPrice)

	got.ExpiresAt = ts(1200)
	require.NoError(t, s.PutSubscription(ctx, got))
	got, err = s.GetSubscriptionForUpdate(ctx, 9)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(ts(1200)))

	require.NoError(t, s.DeleteSubscription(ctx, 9))
	require.NoError(t, s.DeleteSubscription(ctx, 9))
	got, err = s.GetSubscription(ctx, 9)
	require.NoError(t, err)
	assert.False(t, got.Exists())
	assert.True(t, got.RenewableUntil.IsZero())
	assert.True(t, got.UnitPrice.IsZero())
}

func testRedemptions(t *testing.T, s store.Store) {
	ctx := context.Background()

	used, err := s.IsConsumed(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, used)

	r := &replay.Redemption{ID: id.NewRedemptionID(), Key: "abc", ConsumedAt: ts(5)}
	require.NoError(t, s.InsertRedemption(ctx, r))

	used, err = s.IsConsumed(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, used)

	dup := &replay.Redemption{ID: id.NewRedemptionID(), Key: "abc", ConsumedAt: ts(6)}
	assert.ErrorIs(t, s.InsertRedemption(ctx, dup), replay.ErrReplayedSignature)
}

func testPayments(t *testing.T, s store.Store) {
	ctx := context.Background()

	bal, err := s.Balance(ctx, alice, "wei")
	require.NoError(t, err)
	assert.Equal(t, types.Zero("wei"), bal)

	require.NoError(t, s.Credit(ctx, alice, types.New(100, "wei")))
	require.NoError(t, s.Credit(ctx, alice, types.New(33, "wei")))
	require.NoError(t, s.Credit(ctx, alice, types.New(7, "usd")))

	bal, err = s.Balance(ctx, alice, "wei")
	require.NoError(t, err)
	assert.Equal(t, types.New(133, "wei"), bal)

	for i, amount := range []int64{100, 33} {
		require.NoError(t, s.InsertReceipt(ctx, &payment.Receipt{
			ID:        id.NewReceiptID(),
			From:      bob,
			To:        alice,
			Amount:    types.New(amount, "wei"),
			Reason:    payment.ReasonIssue,
			AssetID:   asset.ID(i + 1),
			CreatedAt: ts(int64(i)),
		}))
	}

	receipts, err := s.ListReceipts(ctx, bob, payment.ListOpts{})
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, int64(100), receipts[0].Amount.Amount)
	assert.Equal(t, asset.ID(2), receipts[1].AssetID)

	receipts, err = s.ListReceipts(ctx, alice, payment.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, int64(33), receipts[0].Amount.Amount)

	// Non-positive paging values are ignored.
	receipts, err = s.ListReceipts(ctx, bob, payment.ListOpts{Offset: -1})
	require.NoError(t, err)
	assert.Len(t, receipts, 2)

	receipts, err = s.ListReceipts(ctx, bob, payment.ListOpts{Limit: -1, Offset: -5})
	require.NoError(t, err)
	assert.Len(t, receipts, 2)

	receipts, err = s.ListReceipts(ctx, bob, payment.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, receipts)
}

func testEvents(t *testing.T, s store.Store) {
	ctx := context.Background()

	e1 := event.New(1, ts(1200), event.ReasonRenewal, ts(400))
	e2 := event.New(2, ts(50), event.ReasonRenewal, ts(10))
	e3 := event.New(1, time.Time{}, event.ReasonCancellation, ts(500))
	for _, e := range []*event.SubscriptionUpdate{e1, e2, e3} {
		require.NoError(t, s.AppendEvent(ctx, e))
	}
	assert.Less(t, e1.Seq, e2.Seq)
	assert.Less(t, e2.Seq, e3.Seq)

	all, err := s.ListEvents(ctx, event.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	forOne, err := s.ListEvents(ctx, event.ListOpts{AssetID: 1})
	require.NoError(t, err)
	require.Len(t, forOne, 2)
	assert.True(t, forOne[0].NewExpiration.Equal(ts(1200)))
	assert.True(t, forOne[1].NewExpiration.IsZero())
	assert.Equal(t, event.ReasonCancellation, forOne[1].Reason)
	assert.Equal(t, e3.ID, forOne[1].ID)

	after, err := s.ListEvents(ctx, event.ListOpts{AfterSeq: e1.Seq, Limit: 1})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, e2.Seq, after[0].Seq)
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context) error {
		n, err := s.NextAssetID(ctx)
		if err != nil {
			return err
		}
		if err := s.InsertAsset(ctx, &asset.Asset{Entity: types.NewEntity(ts(0)), ID: n, Owner: alice}); err != nil {
			return err
		}
		if err := s.InsertRedemption(ctx, &replay.Redemption{ID: id.NewRedemptionID(), Key: "k", ConsumedAt: ts(0)}); err != nil {
			return err
		}
		r, err := subscription.Open(n, ts(0), time.Minute, time.Minute, types.New(60, "wei"))
		if err != nil {
			return err
		}
		if err := s.PutSubscription(ctx, r); err != nil {
			return err
		}
		if err := s.Credit(ctx, alice, types.New(60, "wei")); err != nil {
			return err
		}
		if err := s.AppendEvent(ctx, event.New(n, ts(60), event.ReasonRenewal, ts(0))); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = s.GetAsset(ctx, 1)
	assert.ErrorIs(t, err, asset.ErrAssetNotFound)

	used, err := s.IsConsumed(ctx, "k")
	require.NoError(t, err)
	assert.False(t, used)

	r, err := s.GetSubscription(ctx, 1)
	require.NoError(t, err)
	assert.False(t, r.Exists())

	bal, err := s.Balance(ctx, alice, "wei")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	events, err := s.ListEvents(ctx, event.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, events)

	// The counter rolls back with the rest.
	n, err := s.NextAssetID(ctx)
	require.NoError(t, err)
	assert.Equal(t, asset.ID(1), n)
}

func testNested(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context) error {
		if err := s.SetPaused(ctx, true); err != nil {
			return err
		}
		return s.InTx(ctx, func(ctx context.Context) error {
			paused, err := s.GetPaused(ctx)
			if err != nil {
				return err
			}
			if !paused {
				return errors.New("inner transaction did not see outer write")
			}
			return errBoom
		})
	})
	require.ErrorIs(t, err, errBoom)

	paused, err := s.GetPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)
}
