package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tenure/id"
	"github.com/xraph/tenure/payment"
	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/store/memory"
	"github.com/xraph/tenure/store/storetest"
	"github.com/xraph/tenure/types"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestClosed(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(context.Background()), store.ErrStoreClosed)
	_, err := s.GetPaused(context.Background())
	assert.ErrorIs(t, err, store.ErrStoreClosed)
	assert.ErrorIs(t, s.SetPaused(context.Background(), true), store.ErrStoreClosed)
}

func TestReadsOutsideTxSeeCommittedState(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	started := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.InTx(ctx, func(ctx context.Context) error {
			if err := s.SetPaused(ctx, true); err != nil {
				return err
			}
			close(started)
			<-proceed
			return nil
		})
	}()

	<-started
	paused, err := s.GetPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused, "uncommitted write must not be visible")

	close(proceed)
	require.NoError(t, <-done)

	paused, err = s.GetPaused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)
}

func TestListReceiptsNegativePaging(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	payer := common.HexToAddress("0xB0B")

	for i := range 3 {
		require.NoError(t, s.InsertReceipt(ctx, &payment.Receipt{
			ID:        id.NewReceiptID(),
			From:      payer,
			Amount:    types.New(int64(i+1), "wei"),
			Reason:    payment.ReasonIssue,
			CreatedAt: time.Unix(int64(i), 0).UTC(),
		}))
	}

	for _, opts := range []payment.ListOpts{
		{Offset: -1},
		{Limit: -1},
		{Limit: -3, Offset: -2},
	} {
		var got []*payment.Receipt
		require.NotPanics(t, func() {
			var err error
			got, err = s.ListReceipts(ctx, payer, opts)
			require.NoError(t, err)
		})
		assert.Len(t, got, 3, "opts %+v", opts)
	}

	got, err := s.ListReceipts(ctx, payer, payment.ListOpts{Limit: 2, Offset: -1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Amount.Amount)
}
