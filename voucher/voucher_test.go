package voucher_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tenure/types"
	"github.com/xraph/tenure/voucher"
)

var system = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func sample() voucher.Voucher {
	return voucher.Voucher{
		Recipient:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
		MetadataRef:     "ipfs://bafy/1.json",
		Duration:        1000 * time.Second,
		RenewableWindow: 500 * time.Second,
		Price:           types.New(1000, "wei"),
		IssuedAt:        time.Unix(1_700_000_000, 0),
	}
}

func TestSignRecoverRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	v := sample()
	sig, err := voucher.Sign(v, system, key)
	require.NoError(t, err)
	require.Len(t, sig, voucher.SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])

	signer, err := v.Signer(system, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestAnyFieldChangeChangesSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	authority := crypto.PubkeyToAddress(key.PublicKey)

	sig, err := voucher.Sign(sample(), system, key)
	require.NoError(t, err)

	mutations := map[string]func(*voucher.Voucher){
		"recipient":        func(v *voucher.Voucher) { v.Recipient[19] ^= 0x01 },
		"metadata":         func(v *voucher.Voucher) { v.MetadataRef += "x" },
		"duration":         func(v *voucher.Voucher) { v.Duration += time.Second },
		"renewable window": func(v *voucher.Voucher) { v.RenewableWindow += time.Second },
		"price":            func(v *voucher.Voucher) { v.Price.Amount++ },
		"issued at":        func(v *voucher.Voucher) { v.IssuedAt = v.IssuedAt.Add(time.Second) },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			v := sample()
			mutate(&v)
			signer, err := v.Signer(system, sig)
			if err == nil {
				assert.NotEqual(t, authority, signer)
			}
		})
	}

	t.Run("system address", func(t *testing.T) {
		other := common.HexToAddress("0x00000000000000000000000000000000000b0b00")
		signer, err := sample().Signer(other, sig)
		if err == nil {
			assert.NotEqual(t, authority, signer)
		}
	})
}

func TestRecoverRejectsMalformed(t *testing.T) {
	digest := sample().Digest(system)

	tests := []struct {
		name string
		sig  []byte
	}{
		{"empty", nil},
		{"short", make([]byte, 64)},
		{"long", make([]byte, 66)},
		{"zero r and s", make([]byte, 65)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := voucher.Recover(digest, tt.sig)
			assert.ErrorIs(t, err, voucher.ErrMalformedSignature)
		})
	}

	_, err := voucher.Recover(digest[:31], make([]byte, 65))
	assert.ErrorIs(t, err, voucher.ErrMalformedSignature)
}

func TestCanonicalRejectsHighS(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := voucher.Sign(sample(), system, key)
	require.NoError(t, err)

	// s' = n - s recovers the same key under the flipped recovery id.
	n := crypto.S256().Params().N
	s := new(big.Int).SetBytes(sig[32:64])
	highS := new(big.Int).Sub(n, s)

	malleated := make([]byte, 65)
	copy(malleated, sig[:32])
	highS.FillBytes(malleated[32:64])
	malleated[64] = 27 + (1 - (sig[64] - 27))

	_, err = voucher.Canonical(malleated)
	assert.ErrorIs(t, err, voucher.ErrMalformedSignature)
}

func TestCanonicalNormalisesRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := voucher.Sign(sample(), system, key)
	require.NoError(t, err)

	raw := make([]byte, 65)
	copy(raw, sig)
	raw[64] -= 27

	a, err := voucher.Canonical(sig)
	require.NoError(t, err)
	b, err := voucher.Canonical(raw)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestValidate(t *testing.T) {
	v := sample()
	require.NoError(t, v.Validate())

	v.Duration = -time.Second
	assert.ErrorIs(t, v.Validate(), voucher.ErrInvalidVoucher)

	v = sample()
	v.Price = types.New(-1, "wei")
	assert.ErrorIs(t, v.Validate(), voucher.ErrInvalidVoucher)
}

func TestEncodeLayout(t *testing.T) {
	v := sample()
	enc := v.Encode(system)
	assert.Len(t, enc, 20+len(v.MetadataRef)+32*4+20)
	assert.Equal(t, v.Recipient.Bytes(), enc[:20])
	assert.Equal(t, system.Bytes(), enc[len(enc)-20:])
	assert.Len(t, v.Digest(system), 32)
}
