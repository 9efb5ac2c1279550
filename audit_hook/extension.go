// Package audithook bridges Tenure lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/plugin"
	"github.com/xraph/tenure/types"
	"github.com/xraph/tenure/voucher"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnAssetIssued          = (*Extension)(nil)
	_ plugin.OnVoucherRejected      = (*Extension)(nil)
	_ plugin.OnPayoutFailed         = (*Extension)(nil)
	_ plugin.OnSubscriptionUpdated  = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled = (*Extension)(nil)
	_ plugin.OnAssetDestroyed       = (*Extension)(nil)
	_ plugin.OnPauseChanged         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Tenure lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *zap.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Issuance hooks
// ──────────────────────────────────────────────────

// OnAssetIssued implements plugin.OnAssetIssued.
func (e *Extension) OnAssetIssued(ctx context.Context, issued plugin.Issued) error {
	kv := []any{
		"owner", issued.Owner.Hex(),
		"payer", issued.Payer.Hex(),
		"metadata_ref", issued.MetadataRef,
		"price", issued.Price.String(),
	}
	if r := issued.Record; r != nil {
		kv = append(kv,
			"expires_at", r.ExpiresAt.Unix(),
			"renewable_until", r.RenewableUntil.Unix(),
			"unit_price", r.UnitPrice.String(),
		)
	}
	return e.record(ctx, ActionAssetIssued, SeverityInfo, OutcomeSuccess,
		ResourceAsset, issued.AssetID.String(), CategoryIssuance, nil,
		kv...,
	)
}

// OnVoucherRejected implements plugin.OnVoucherRejected.
func (e *Extension) OnVoucherRejected(ctx context.Context, v voucher.Voucher, reason error) error {
	return e.record(ctx, ActionVoucherRejected, SeverityWarning, OutcomeFailure,
		ResourceVoucher, "", CategoryIssuance, reason,
		"recipient", v.Recipient.Hex(),
		"issued_at", v.IssuedAt.Unix(),
	)
}

// OnPayoutFailed implements plugin.OnPayoutFailed.
func (e *Extension) OnPayoutFailed(ctx context.Context, from common.Address, amount types.Money, reason error) error {
	return e.record(ctx, ActionPayoutFailed, SeverityError, OutcomeFailure,
		ResourcePayment, "", CategoryPayment, reason,
		"from", from.Hex(),
		"amount", amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionUpdated implements plugin.OnSubscriptionUpdated. Only
// renewals are recorded here; cancellations go through
// OnSubscriptionCanceled, which knows the caller.
func (e *Extension) OnSubscriptionUpdated(ctx context.Context, u *event.SubscriptionUpdate) error {
	if u.Reason != event.ReasonRenewal {
		return nil
	}
	return e.record(ctx, ActionSubscriptionRenewed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, u.AssetID.String(), CategorySubscription, nil,
		"event_id", u.ID.String(),
		"new_expiration", u.NewExpiration.Unix(),
	)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, assetID asset.ID, caller common.Address) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, assetID.String(), CategorySubscription, nil,
		"caller", caller.Hex(),
	)
}

// OnAssetDestroyed implements plugin.OnAssetDestroyed.
func (e *Extension) OnAssetDestroyed(ctx context.Context, assetID asset.ID, caller common.Address) error {
	return e.record(ctx, ActionAssetDestroyed, SeverityWarning, OutcomeSuccess,
		ResourceAsset, assetID.String(), CategoryAccess, nil,
		"caller", caller.Hex(),
	)
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnPauseChanged implements plugin.OnPauseChanged.
func (e *Extension) OnPauseChanged(ctx context.Context, paused bool) error {
	action, severity := ActionSystemUnpaused, SeverityInfo
	if paused {
		action, severity = ActionSystemPaused, SeverityCritical
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceSystem, "", CategoryAdmin, nil,
		"paused", paused,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.Error(recErr),
		)
	}
	return nil
}
