package voucher

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a detached signature: r[32] | s[32] | v[1].
const SignatureLength = crypto.SignatureLength

// ErrMalformedSignature reports a signature that is not a 65-byte, low-s
// secp256k1 signature with a valid recovery id, or a digest that is not 32
// bytes.
var ErrMalformedSignature = errors.New("tenure: malformed signature")

// Canonical returns sig with the recovery id normalised to 0/1.
// Signatures with a high s value are rejected so that a signature and its
// malleated twin cannot both be redeemed.
func Canonical(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrMalformedSignature, len(sig), SignatureLength)
	}

	out := make([]byte, SignatureLength)
	copy(out, sig)

	v := out[64]
	if v >= 27 {
		v -= 27
	}
	r := new(big.Int).SetBytes(out[:32])
	s := new(big.Int).SetBytes(out[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return nil, fmt.Errorf("%w: invalid r, s or recovery id", ErrMalformedSignature)
	}
	out[64] = v

	return out, nil
}

// Recover returns the address that produced sig over digest.
func Recover(digest, sig []byte) (common.Address, error) {
	if len(digest) != 32 {
		return common.Address{}, fmt.Errorf("%w: digest length %d", ErrMalformedSignature, len(digest))
	}

	canonical, err := Canonical(sig)
	if err != nil {
		return common.Address{}, err
	}

	pub, err := crypto.SigToPub(digest, canonical)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// Signer recovers the address that signed v for the given system.
func (v Voucher) Signer(system common.Address, sig []byte) (common.Address, error) {
	return Recover(v.Digest(system), sig)
}

// Sign signs v for system with key. The recovery id is returned as 27/28,
// the form produced by wallets.
func Sign(v Voucher, system common.Address, key *ecdsa.PrivateKey) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(v.Digest(system), key)
	if err != nil {
		return nil, fmt.Errorf("tenure/voucher: sign: %w", err)
	}
	sig[64] += 27

	return sig, nil
}
