package replay_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tenure/replay"
	"github.com/xraph/tenure/store/memory"
	"github.com/xraph/tenure/voucher"
)

func signature(t *testing.T) []byte {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := voucher.Sign(voucher.Voucher{Duration: time.Hour, IssuedAt: time.Unix(1, 0)}, common.Address{}, key)
	require.NoError(t, err)
	return sig
}

func TestConsumeOnce(t *testing.T) {
	g := replay.NewGuard(memory.New())
	ctx := context.Background()
	sig := signature(t)

	require.NoError(t, g.Check(ctx, sig))

	r, err := g.Consume(ctx, sig, time.Unix(10, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.ConsumedAt.Unix())
	assert.NotEmpty(t, r.ID.String())

	assert.ErrorIs(t, g.Check(ctx, sig), replay.ErrReplayedSignature)
	_, err = g.Consume(ctx, sig, time.Unix(11, 0))
	assert.ErrorIs(t, err, replay.ErrReplayedSignature)
}

func TestKeyIgnoresRecoveryIDSpelling(t *testing.T) {
	sig := signature(t)
	alt := append([]byte(nil), sig...)
	alt[64] -= 27

	a, err := replay.Key(sig)
	require.NoError(t, err)
	b, err := replay.Key(alt)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKeyRejectsMalformed(t *testing.T) {
	_, err := replay.Key(make([]byte, 64))
	assert.ErrorIs(t, err, voucher.ErrMalformedSignature)
}
