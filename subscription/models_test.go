package subscription_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tenure/subscription"
	"github.com/xraph/tenure/types"
)

func at(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func secs(n int64) time.Duration { return time.Duration(n) * time.Second }

func TestOpen(t *testing.T) {
	r, err := subscription.Open(7, at(0), secs(1000), secs(500), types.New(1000, "wei"))
	require.NoError(t, err)

	assert.Equal(t, at(1000), r.ExpiresAt)
	assert.Equal(t, at(500), r.RenewableUntil)
	assert.Equal(t, types.New(1, "wei"), r.UnitPrice)
	assert.True(t, r.Active(at(999)))
	assert.False(t, r.Active(at(1000)))
}

func TestOpenZeroDuration(t *testing.T) {
	_, err := subscription.Open(1, at(0), 0, secs(10), types.New(10, "wei"))
	assert.ErrorIs(t, err, subscription.ErrInvalidDuration)

	_, err = subscription.Open(1, at(0), 999*time.Millisecond, secs(10), types.New(10, "wei"))
	assert.ErrorIs(t, err, subscription.ErrInvalidDuration)
}

func TestUnitPriceTruncates(t *testing.T) {
	r, err := subscription.Open(1, at(0), secs(3), secs(3), types.New(100, "wei"))
	require.NoError(t, err)
	assert.Equal(t, int64(33), r.UnitPrice.Amount)

	fee, err := r.Quote(secs(1))
	require.NoError(t, err)
	assert.Equal(t, int64(33), fee.Amount)
}

func TestQuote(t *testing.T) {
	r := &subscription.Record{UnitPrice: types.New(4, "wei")}

	fee, err := r.Quote(secs(25))
	require.NoError(t, err)
	assert.Equal(t, types.New(100, "wei"), fee)

	_, err = r.Quote(0)
	assert.ErrorIs(t, err, subscription.ErrInvalidDuration)

	huge := &subscription.Record{UnitPrice: types.New(1<<62, "wei")}
	_, err = huge.Quote(secs(4))
	assert.ErrorIs(t, err, subscription.ErrFeeOverflow)
	assert.NotErrorIs(t, err, subscription.ErrInvalidDuration)
}

func TestNext(t *testing.T) {
	base := func() *subscription.Record {
		return &subscription.Record{ExpiresAt: at(1000), RenewableUntil: at(500), UnitPrice: types.New(1, "wei")}
	}

	tests := []struct {
		name   string
		record *subscription.Record
		extra  time.Duration
		now    time.Time
		want   time.Time
		err    error
	}{
		{"active is additive", base(), secs(200), at(400), at(1200), nil},
		{"active ignores now", base(), secs(200), at(999), at(1200), nil},
		{"active past renewable-until", base(), secs(10), at(600), at(1010), nil},
		{"lapsed past renewable-until", base(), secs(200), at(1200), time.Time{}, subscription.ErrNotRenewable},
		{
			"lapsed within window restarts from now",
			&subscription.Record{ExpiresAt: at(100), RenewableUntil: at(500)},
			secs(50), at(300), at(350), nil,
		},
		{
			"lapsed exactly at expiry",
			&subscription.Record{ExpiresAt: at(100), RenewableUntil: at(500)},
			secs(50), at(100), at(150), nil,
		},
		{
			"renewable-until is inclusive",
			&subscription.Record{ExpiresAt: at(100), RenewableUntil: at(500)},
			secs(50), at(500), at(550), nil,
		},
		{"missing record", &subscription.Record{}, secs(10), at(5), time.Time{}, subscription.ErrNotRenewable},
		{"zero duration", base(), 0, at(400), time.Time{}, subscription.ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.record.Next(tt.extra, tt.now)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenewable(t *testing.T) {
	r := &subscription.Record{ExpiresAt: at(10), RenewableUntil: at(20)}
	assert.True(t, r.Renewable(at(20)))
	assert.False(t, r.Renewable(at(21)))

	var missing *subscription.Record
	assert.False(t, missing.Renewable(at(0)))
	assert.False(t, missing.Exists())
}
