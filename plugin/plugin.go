// Package plugin provides an extensible plugin system for Tenure.
// Plugins hook into engine lifecycle events. Hooks run after the operation
// has committed; their errors are logged and never change the outcome.
package plugin

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/subscription"
	"github.com/xraph/tenure/types"
	"github.com/xraph/tenure/voucher"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Issuance hooks
// ──────────────────────────────────────────────────

// Issued describes a committed issuance.
type Issued struct {
	AssetID     asset.ID
	Owner       common.Address
	Payer       common.Address
	MetadataRef string
	Price       types.Money
	Record      *subscription.Record
}

// OnAssetIssued is called after a voucher has been redeemed.
type OnAssetIssued interface {
	Plugin
	OnAssetIssued(ctx context.Context, issued Issued) error
}

// OnVoucherRejected is called when a voucher fails verification, replay,
// freshness or payment checks.
type OnVoucherRejected interface {
	Plugin
	OnVoucherRejected(ctx context.Context, v voucher.Voucher, reason error) error
}

// OnPayoutFailed is called when the payee's receiver rejects a payment.
type OnPayoutFailed interface {
	Plugin
	OnPayoutFailed(ctx context.Context, from common.Address, amount types.Money, reason error) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionUpdated is called for every committed SubscriptionUpdate.
type OnSubscriptionUpdated interface {
	Plugin
	OnSubscriptionUpdated(ctx context.Context, update *event.SubscriptionUpdate) error
}

// OnSubscriptionCanceled is called after a cancellation commits.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, assetID asset.ID, caller common.Address) error
}

// OnAssetDestroyed is called after an asset and its record are removed.
type OnAssetDestroyed interface {
	Plugin
	OnAssetDestroyed(ctx context.Context, assetID asset.ID, caller common.Address) error
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnPauseChanged is called when the authority pauses or unpauses.
type OnPauseChanged interface {
	Plugin
	OnPauseChanged(ctx context.Context, paused bool) error
}
