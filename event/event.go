// Package event is the persisted outbox of subscription updates. Each entry
// is appended in the same transaction as the mutation it reports.
package event

import (
	"context"
	"time"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/id"
)

// Reason names the operation that produced an update.
type Reason string

const (
	ReasonRenewal      Reason = "renewal"
	ReasonCancellation Reason = "cancellation"
)

// SubscriptionUpdate reports a new expiration for an asset. NewExpiration is
// zero for a cancellation.
type SubscriptionUpdate struct {
	Seq           int64      `json:"seq"`
	ID            id.EventID `json:"id"`
	AssetID       asset.ID   `json:"asset_id"`
	NewExpiration time.Time  `json:"new_expiration"`
	Reason        Reason     `json:"reason"`
	At            time.Time  `json:"at"`
}

// New builds an update; the store assigns Seq.
func New(assetID asset.ID, newExpiration time.Time, reason Reason, at time.Time) *SubscriptionUpdate {
	return &SubscriptionUpdate{
		ID:            id.NewEventID(),
		AssetID:       assetID,
		NewExpiration: newExpiration,
		Reason:        reason,
		At:            at.UTC(),
	}
}

// Store persists the outbox. AppendEvent sets Seq to a strictly increasing
// value.
type Store interface {
	AppendEvent(ctx context.Context, e *SubscriptionUpdate) error
	ListEvents(ctx context.Context, opts ListOpts) ([]*SubscriptionUpdate, error)
}

// ListOpts selects events with Seq > AfterSeq, oldest first. A zero AssetID
// lists every asset; a zero Limit means no limit.
type ListOpts struct {
	AssetID  asset.ID
	AfterSeq int64
	Limit    int
}
