// Package subscription holds the per-asset time record and the arithmetic
// that moves it: opening at issuance, extension on renewal, and the
// renewable-until grace boundary.
package subscription

import (
	"errors"
	"time"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/types"
)

// Unit is the smallest billable slice of time. Durations are counted in
// whole units; remainders are truncated.
const Unit = time.Second

var (
	ErrInvalidDuration = errors.New("tenure: invalid duration")
	ErrNotRenewable    = errors.New("tenure: subscription not renewable")
	ErrFeeOverflow     = errors.New("tenure: renewal fee overflows")
)

// Record is the subscription triple attached to one asset. A zero ExpiresAt
// means no subscription: never issued, cancelled, or destroyed.
type Record struct {
	types.Entity
	AssetID        asset.ID    `json:"asset_id"`
	ExpiresAt      time.Time   `json:"expires_at"`
	RenewableUntil time.Time   `json:"renewable_until"`
	UnitPrice      types.Money `json:"unit_price"`
}

// Units returns the number of whole units in d.
func Units(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / Unit)
}

// Truncate drops the sub-unit remainder of d.
func Truncate(d time.Duration) time.Duration {
	return time.Duration(Units(d)) * Unit
}

// Open builds the record for a freshly issued asset.
func Open(id asset.ID, now time.Time, duration, window time.Duration, price types.Money) (*Record, error) {
	units := Units(duration)
	if units == 0 {
		return nil, ErrInvalidDuration
	}

	now = now.UTC()
	return &Record{
		Entity:         types.NewEntity(now),
		AssetID:        id,
		ExpiresAt:      now.Add(Truncate(duration)),
		RenewableUntil: now.Add(Truncate(window)),
		UnitPrice:      price.Divide(units),
	}, nil
}

// Exists reports whether the record describes a live subscription.
func (r *Record) Exists() bool {
	return r != nil && !r.ExpiresAt.IsZero()
}

// Active reports whether the subscription is running at now.
func (r *Record) Active(now time.Time) bool {
	return r.Exists() && r.ExpiresAt.After(now)
}

// Renewable reports whether RenewableUntil >= now.
func (r *Record) Renewable(now time.Time) bool {
	return r != nil && !r.RenewableUntil.IsZero() && !r.RenewableUntil.Before(now)
}

// Quote returns the fee for extending by d.
func (r *Record) Quote(d time.Duration) (types.Money, error) {
	units := Units(d)
	if units == 0 {
		return types.Money{}, ErrInvalidDuration
	}
	fee, ok := r.UnitPrice.MultiplyChecked(units)
	if !ok {
		return types.Money{}, ErrFeeOverflow
	}
	return fee, nil
}

// Next returns the expiration after extending by d at now.
//
// An active subscription is extended from its current expiration. A lapsed
// one restarts from now, but only while now is within the renewable window.
func (r *Record) Next(d time.Duration, now time.Time) (time.Time, error) {
	span := Truncate(d)
	if span == 0 {
		return time.Time{}, ErrInvalidDuration
	}
	if r.Active(now) {
		return r.ExpiresAt.Add(span), nil
	}
	if !r.Renewable(now) {
		return time.Time{}, ErrNotRenewable
	}
	return now.UTC().Add(span), nil
}
