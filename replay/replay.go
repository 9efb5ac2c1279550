// Package replay records consumed voucher signatures so that each voucher is
// redeemed at most once. Entries are permanent.
package replay

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/xraph/tenure/id"
	"github.com/xraph/tenure/voucher"
)

var ErrReplayedSignature = errors.New("tenure: signature already consumed")

// Redemption is one consumed signature.
type Redemption struct {
	ID         id.RedemptionID `json:"id"`
	Key        string          `json:"key"`
	ConsumedAt time.Time       `json:"consumed_at"`
}

// Store persists redemptions. InsertRedemption must fail with
// ErrReplayedSignature when Key is already present.
type Store interface {
	IsConsumed(ctx context.Context, key string) (bool, error)
	InsertRedemption(ctx context.Context, r *Redemption) error
}

// Key is the registry key for sig: the hex of its canonical form, so the
// 0/1 and 27/28 spellings of one signature collide.
func Key(sig []byte) (string, error) {
	c, err := voucher.Canonical(sig)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(c), nil
}

// Guard wraps a Store with the check/consume protocol.
type Guard struct {
	store Store
}

// NewGuard returns a guard over s.
func NewGuard(s Store) *Guard {
	return &Guard{store: s}
}

// Check fails with ErrReplayedSignature if sig was consumed. It writes
// nothing.
func (g *Guard) Check(ctx context.Context, sig []byte) error {
	key, err := Key(sig)
	if err != nil {
		return err
	}
	used, err := g.store.IsConsumed(ctx, key)
	if err != nil {
		return err
	}
	if used {
		return ErrReplayedSignature
	}
	return nil
}

// Consume records sig as used at the given instant.
func (g *Guard) Consume(ctx context.Context, sig []byte, at time.Time) (*Redemption, error) {
	key, err := Key(sig)
	if err != nil {
		return nil, err
	}
	r := &Redemption{
		ID:         id.NewRedemptionID(),
		Key:        key,
		ConsumedAt: at.UTC(),
	}
	if err := g.store.InsertRedemption(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}
