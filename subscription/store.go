package subscription

import (
	"context"

	"github.com/xraph/tenure/asset"
)

// Store persists records whole. There is no partial update: callers put the
// full triple or delete it.
type Store interface {
	// GetSubscription returns the record for id, or a zero-valued record
	// when none exists.
	GetSubscription(ctx context.Context, id asset.ID) (*Record, error)
	// GetSubscriptionForUpdate is GetSubscription that also locks the row
	// for the rest of the enclosing transaction where the backend supports it.
	GetSubscriptionForUpdate(ctx context.Context, id asset.ID) (*Record, error)
	PutSubscription(ctx context.Context, r *Record) error
	DeleteSubscription(ctx context.Context, id asset.ID) error
}
