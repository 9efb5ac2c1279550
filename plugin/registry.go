package plugin

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/types"
	"github.com/xraph/tenure/voucher"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *zap.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onAssetIssued          []OnAssetIssued
	onVoucherRejected      []OnVoucherRejected
	onPayoutFailed         []OnPayoutFailed
	onSubscriptionUpdated  []OnSubscriptionUpdated
	onSubscriptionCanceled []OnSubscriptionCanceled
	onAssetDestroyed       []OnAssetDestroyed
	onPauseChanged         []OnPauseChanged
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *zap.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAssetIssued); ok {
		r.onAssetIssued = append(r.onAssetIssued, v)
	}
	if v, ok := p.(OnVoucherRejected); ok {
		r.onVoucherRejected = append(r.onVoucherRejected, v)
	}
	if v, ok := p.(OnPayoutFailed); ok {
		r.onPayoutFailed = append(r.onPayoutFailed, v)
	}
	if v, ok := p.(OnSubscriptionUpdated); ok {
		r.onSubscriptionUpdated = append(r.onSubscriptionUpdated, v)
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
	}
	if v, ok := p.(OnAssetDestroyed); ok {
		r.onAssetDestroyed = append(r.onAssetDestroyed, v)
	}
	if v, ok := p.(OnPauseChanged); ok {
		r.onPauseChanged = append(r.onPauseChanged, v)
	}

	r.logger.Info("plugin registered",
		zap.String("name", p.Name()),
		zap.Strings("interfaces", implementedInterfaces(p)),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnAssetIssued", reflect.TypeFor[OnAssetIssued]()},
	{"OnVoucherRejected", reflect.TypeFor[OnVoucherRejected]()},
	{"OnPayoutFailed", reflect.TypeFor[OnPayoutFailed]()},
	{"OnSubscriptionUpdated", reflect.TypeFor[OnSubscriptionUpdated]()},
	{"OnSubscriptionCanceled", reflect.TypeFor[OnSubscriptionCanceled]()},
	{"OnAssetDestroyed", reflect.TypeFor[OnAssetDestroyed]()},
	{"OnPauseChanged", reflect.TypeFor[OnPauseChanged]()},
}

// implementedInterfaces returns the hook interfaces implemented by p.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, call func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return call(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				zap.String("hook", hook),
				zap.String("plugin", p.Name()),
				zap.Error(err),
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitAssetIssued emits an asset issued event.
func (r *Registry) EmitAssetIssued(ctx context.Context, issued Issued) {
	emit(ctx, r, "OnAssetIssued", snapshot(r, &r.onAssetIssued), func(p OnAssetIssued) error {
		return p.OnAssetIssued(ctx, issued)
	})
}

// EmitVoucherRejected emits a voucher rejected event.
func (r *Registry) EmitVoucherRejected(ctx context.Context, v voucher.Voucher, reason error) {
	emit(ctx, r, "OnVoucherRejected", snapshot(r, &r.onVoucherRejected), func(p OnVoucherRejected) error {
		return p.OnVoucherRejected(ctx, v, reason)
	})
}

// EmitPayoutFailed emits a payout failed event.
func (r *Registry) EmitPayoutFailed(ctx context.Context, from common.Address, amount types.Money, reason error) {
	emit(ctx, r, "OnPayoutFailed", snapshot(r, &r.onPayoutFailed), func(p OnPayoutFailed) error {
		return p.OnPayoutFailed(ctx, from, amount, reason)
	})
}

// EmitSubscriptionUpdated emits a subscription update.
func (r *Registry) EmitSubscriptionUpdated(ctx context.Context, update *event.SubscriptionUpdate) {
	emit(ctx, r, "OnSubscriptionUpdated", snapshot(r, &r.onSubscriptionUpdated), func(p OnSubscriptionUpdated) error {
		return p.OnSubscriptionUpdated(ctx, update)
	})
}

// EmitSubscriptionCanceled emits a subscription canceled event.
func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, assetID asset.ID, caller common.Address) {
	emit(ctx, r, "OnSubscriptionCanceled", snapshot(r, &r.onSubscriptionCanceled), func(p OnSubscriptionCanceled) error {
		return p.OnSubscriptionCanceled(ctx, assetID, caller)
	})
}

// EmitAssetDestroyed emits an asset destroyed event.
func (r *Registry) EmitAssetDestroyed(ctx context.Context, assetID asset.ID, caller common.Address) {
	emit(ctx, r, "OnAssetDestroyed", snapshot(r, &r.onAssetDestroyed), func(p OnAssetDestroyed) error {
		return p.OnAssetDestroyed(ctx, assetID, caller)
	})
}

// EmitPauseChanged emits a pause flag change.
func (r *Registry) EmitPauseChanged(ctx context.Context, paused bool) {
	emit(ctx, r, "OnPauseChanged", snapshot(r, &r.onPauseChanged), func(p OnPauseChanged) error {
		return p.OnPauseChanged(ctx, paused)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the engine.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
