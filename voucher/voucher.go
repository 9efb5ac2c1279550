// Package voucher builds and verifies authority-signed issuance vouchers.
//
// A voucher is the unsigned payload {recipient, metadata reference,
// duration, renewable window, price, issuance time}. The authority signs a
// digest of its packed encoding concatenated with the issuing system's
// address, so a signature is valid for exactly one deployment and one set of
// field values.
//
// Everything in this package is pure: no state, no I/O.
package voucher

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xraph/tenure/types"
)

// ErrInvalidVoucher reports a voucher whose fields cannot be encoded.
var ErrInvalidVoucher = errors.New("tenure: invalid voucher")

// Voucher is the signed request permitting creation of one asset.
// Durations and the issuance instant are encoded with one-second precision.
type Voucher struct {
	Recipient       common.Address `json:"recipient"`
	MetadataRef     string         `json:"metadata_ref"`
	Duration        time.Duration  `json:"duration"`
	RenewableWindow time.Duration  `json:"renewable_window"`
	Price           types.Money    `json:"price"`
	IssuedAt        time.Time      `json:"issued_at"`
}

// Validate reports fields that have no packed encoding.
func (v Voucher) Validate() error {
	switch {
	case v.Duration < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidVoucher)
	case v.RenewableWindow < 0:
		return fmt.Errorf("%w: negative renewable window", ErrInvalidVoucher)
	case v.Price.IsNegative():
		return fmt.Errorf("%w: negative price", ErrInvalidVoucher)
	case v.IssuedAt.Unix() < 0:
		return fmt.Errorf("%w: issuance time before epoch", ErrInvalidVoucher)
	}
	return nil
}

// Encode returns the packed encoding signed by the authority:
//
//	recipient[20] | metadataRef | uint256(durationSec) | uint256(windowSec) |
//	uint256(price) | uint256(issuedAtUnix) | system[20]
//
// Callers must Validate first; negative values encode as their absolute
// value.
func (v Voucher) Encode(system common.Address) []byte {
	out := make([]byte, 0, common.AddressLength*2+len(v.MetadataRef)+32*4)
	out = append(out, v.Recipient.Bytes()...)
	out = append(out, v.MetadataRef...)
	out = append(out, word(int64(v.Duration/time.Second))...)
	out = append(out, word(int64(v.RenewableWindow/time.Second))...)
	out = append(out, word(v.Price.Amount)...)
	out = append(out, word(v.IssuedAt.Unix())...)
	out = append(out, system.Bytes()...)
	return out
}

// Digest is the 32-byte message the authority signs: the EIP-191 personal
// message hash of keccak256(Encode(system)).
func (v Voucher) Digest(system common.Address) []byte {
	return accounts.TextHash(crypto.Keccak256(v.Encode(system)))
}

func word(n int64) []byte {
	b := new(big.Int).SetInt64(n)
	return math.U256Bytes(b.Abs(b))
}
