// Package observability provides a metrics extension for Tenure that records
// issuance and subscription lifecycle counts through a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/plugin"
	"github.com/xraph/tenure/replay"
	"github.com/xraph/tenure/types"
	"github.com/xraph/tenure/voucher"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnAssetIssued          = (*MetricsExtension)(nil)
	_ plugin.OnVoucherRejected      = (*MetricsExtension)(nil)
	_ plugin.OnPayoutFailed         = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionUpdated  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled = (*MetricsExtension)(nil)
	_ plugin.OnAssetDestroyed       = (*MetricsExtension)(nil)
	_ plugin.OnPauseChanged         = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// Gauge interface for metric gauges.
type Gauge interface {
	Set(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Tenure plugin to track issuance and renewals.
type MetricsExtension struct {
	factory MetricFactory

	// Issuance metrics
	AssetsIssued     Counter
	IssuedDuration   Histogram
	IssuedPrice      Histogram
	VouchersRejected Counter
	VouchersReplayed Counter

	// Payment metrics
	PayoutsFailed Counter

	// Subscription metrics
	SubscriptionsRenewed  Counter
	SubscriptionsCanceled Counter
	AssetsDestroyed       Counter

	// Admin metrics
	Paused Gauge
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		AssetsIssued:     factory.Counter("tenure.asset.issued"),
		IssuedDuration:   factory.Histogram("tenure.asset.issued.duration_seconds"),
		IssuedPrice:      factory.Histogram("tenure.asset.issued.price"),
		VouchersRejected: factory.Counter("tenure.voucher.rejected"),
		VouchersReplayed: factory.Counter("tenure.voucher.replayed"),

		PayoutsFailed: factory.Counter("tenure.payout.failed"),

		SubscriptionsRenewed:  factory.Counter("tenure.subscription.renewed"),
		SubscriptionsCanceled: factory.Counter("tenure.subscription.canceled"),
		AssetsDestroyed:       factory.Counter("tenure.asset.destroyed"),

		Paused: factory.Gauge("tenure.paused"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Issuance hooks
// ──────────────────────────────────────────────────

// OnAssetIssued implements plugin.OnAssetIssued.
func (m *MetricsExtension) OnAssetIssued(_ context.Context, issued plugin.Issued) error {
	m.AssetsIssued.Inc()
	m.IssuedPrice.Observe(float64(issued.Price.Amount))
	if r := issued.Record; r != nil {
		m.IssuedDuration.Observe(r.ExpiresAt.Sub(r.CreatedAt).Seconds())
	}
	return nil
}

// OnVoucherRejected implements plugin.OnVoucherRejected.
func (m *MetricsExtension) OnVoucherRejected(_ context.Context, _ voucher.Voucher, reason error) error {
	if errors.Is(reason, replay.ErrReplayedSignature) {
		m.VouchersReplayed.Inc()
	}
	m.VouchersRejected.Inc()
	return nil
}

// OnPayoutFailed implements plugin.OnPayoutFailed.
func (m *MetricsExtension) OnPayoutFailed(_ context.Context, _ common.Address, _ types.Money, _ error) error {
	m.PayoutsFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionUpdated implements plugin.OnSubscriptionUpdated.
// Cancellations are counted by OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionUpdated(_ context.Context, u *event.SubscriptionUpdate) error {
	if u.Reason == event.ReasonRenewal {
		m.SubscriptionsRenewed.Inc()
	}
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ asset.ID, _ common.Address) error {
	m.SubscriptionsCanceled.Inc()
	return nil
}

// OnAssetDestroyed implements plugin.OnAssetDestroyed.
func (m *MetricsExtension) OnAssetDestroyed(_ context.Context, _ asset.ID, _ common.Address) error {
	m.AssetsDestroyed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnPauseChanged implements plugin.OnPauseChanged.
func (m *MetricsExtension) OnPauseChanged(_ context.Context, paused bool) error {
	if paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
	return nil
}
