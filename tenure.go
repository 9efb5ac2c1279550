package tenure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/lock"
	"github.com/xraph/tenure/payment"
	"github.com/xraph/tenure/plugin"
	"github.com/xraph/tenure/replay"
	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/subscription"
	"github.com/xraph/tenure/types"
	"github.com/xraph/tenure/voucher"
)

// DefaultFreshnessWindow is how long after its issuance time a voucher may
// be redeemed.
const DefaultFreshnessWindow = 5 * time.Minute

const issuanceLockKey = "issuance"

func assetLockKey(id asset.ID) string { return "asset:" + id.String() }

// Engine issues subscription assets from vouchers and runs their
// subscription lifecycle.
type Engine struct {
	store    store.Store
	registry asset.Registry
	plugins  *plugin.Registry
	logger   *zap.Logger
	locker   lock.Locker
	guard    *replay.Guard
	payments *payment.Processor
	receiver payment.Receiver
	now      func() time.Time

	// Configuration
	authority common.Address
	system    common.Address
	currency  string
	freshness time.Duration
}

// New creates an Engine over s. The authority address is required, either
// through WithAuthority or from a registry passed with WithRegistry.
func New(s store.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:     s,
		plugins:   plugin.NewRegistry(),
		logger:    zap.NewNop(),
		locker:    lock.NewLocal(),
		guard:     replay.NewGuard(s),
		now:       time.Now,
		currency:  types.DefaultCurrency,
		freshness: DefaultFreshnessWindow,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.registry != nil && e.authority == (common.Address{}) {
		e.authority = e.registry.Authority()
	}
	if e.authority == (common.Address{}) {
		return nil, ValidationError{Field: "authority", Message: "required"}
	}
	if e.registry == nil {
		e.registry = asset.NewRegistry(s, e.authority,
			asset.WithRegistryLogger(e.logger.Named("registry")),
			asset.WithRegistryClock(e.clock),
		)
	}
	if e.registry.Authority() != e.authority {
		return nil, ValidationError{Field: "authority", Message: "does not match registry authority"}
	}
	if e.freshness <= 0 {
		return nil, ValidationError{Field: "freshness_window", Message: "must be positive"}
	}

	e.currency = types.Zero(e.currency).Currency
	e.payments = payment.NewProcessor(s, e.authority, e.receiver)
	e.registry.OnDestroy(e.clearOnDestroy)

	return e, nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger.Named("plugin"))
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// clock returns the current instant in UTC, truncated to whole units.
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(subscription.Unit)
}

// WithAuthority sets the account that signs vouchers, receives payments and
// may pause the system.
func WithAuthority(addr common.Address) Option {
	return func(e *Engine) { e.authority = addr }
}

// WithSystemAddress sets the address vouchers are bound to.
func WithSystemAddress(addr common.Address) Option {
	return func(e *Engine) { e.system = addr }
}

// WithCurrency sets the only currency accepted for prices and payments.
func WithCurrency(currency string) Option {
	return func(e *Engine) { e.currency = currency }
}

// WithFreshnessWindow sets how long a voucher stays redeemable after its
// issuance time.
func WithFreshnessWindow(d time.Duration) Option {
	return func(e *Engine) { e.freshness = d }
}

// WithRegistry replaces the store-backed asset registry.
func WithRegistry(r asset.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithLocker replaces the in-process locker, for example with a redis
// locker shared by several instances.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithReceiver sets the authority's payment acceptance check.
func WithReceiver(r payment.Receiver) Option {
	return func(e *Engine) { e.receiver = r }
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("tenure started",
		zap.Stringer("authority", e.authority),
		zap.Stringer("system", e.system),
		zap.String("currency", e.currency),
		zap.Duration("freshness_window", e.freshness),
	)
	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Registry returns the asset registry.
func (e *Engine) Registry() asset.Registry { return e.registry }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Authority returns the authority address.
func (e *Engine) Authority() common.Address { return e.authority }

// SystemAddress returns the address vouchers are bound to.
func (e *Engine) SystemAddress() common.Address { return e.system }

// Currency returns the accepted currency.
func (e *Engine) Currency() string { return e.currency }

// FreshnessWindow returns the voucher freshness window.
func (e *Engine) FreshnessWindow() time.Duration { return e.freshness }

// ──────────────────────────────────────────────────
// Issuance
// ──────────────────────────────────────────────────

// IssueRequest is a voucher redemption.
type IssueRequest struct {
	Voucher   voucher.Voucher
	Signature []byte
	Payer     common.Address
	Payment   types.Money
}

// Issue redeems a voucher: it verifies the signer, duration, replay,
// freshness and payment, then consumes the signature, creates the asset,
// opens its subscription and pays the authority in one transaction.
func (e *Engine) Issue(ctx context.Context, req IssueRequest) (asset.ID, error) {
	release, err := e.locker.Lock(ctx, issuanceLockKey)
	if err != nil {
		return 0, err
	}
	defer release()

	now := e.clock()
	v := req.Voucher

	var issued plugin.Issued
	err = e.store.InTx(ctx, func(ctx context.Context) error {
		if err := e.requireUnpaused(ctx); err != nil {
			return err
		}
		if err := e.checkVoucher(ctx, req, now); err != nil {
			return err
		}

		if _, err := e.guard.Consume(ctx, req.Signature, now); err != nil {
			return err
		}

		id, err := e.registry.CreateAsset(ctx, v.Recipient, v.MetadataRef)
		if err != nil {
			return fmt.Errorf("tenure: create asset: %w", err)
		}

		record, err := subscription.Open(id, now, v.Duration, v.RenewableWindow, v.Price)
		if err != nil {
			return err
		}
		if err := e.store.PutSubscription(ctx, record); err != nil {
			return fmt.Errorf("tenure: open subscription %d: %w", id, err)
		}

		if _, err := e.payments.Pay(ctx, payment.Transfer{
			From:    req.Payer,
			Amount:  req.Payment,
			Reason:  payment.ReasonIssue,
			AssetID: id,
			At:      now,
		}); err != nil {
			return err
		}

		issued = plugin.Issued{
			AssetID:     id,
			Owner:       v.Recipient,
			Payer:       req.Payer,
			MetadataRef: v.MetadataRef,
			Price:       v.Price,
			Record:      record,
		}
		return nil
	})
	if err != nil {
		e.rejected(ctx, v, req.Payer, req.Payment, err)
		return 0, err
	}

	e.logger.Info("asset issued",
		zap.Uint64("asset_id", uint64(issued.AssetID)),
		zap.Stringer("owner", issued.Owner),
		zap.Time("expires_at", issued.Record.ExpiresAt),
		zap.Time("renewable_until", issued.Record.RenewableUntil),
		zap.Stringer("unit_price", issued.Record.UnitPrice),
	)
	e.plugins.EmitAssetIssued(ctx, issued)
	return issued.AssetID, nil
}

// checkVoucher runs every issuance precondition before any write.
func (e *Engine) checkVoucher(ctx context.Context, req IssueRequest, now time.Time) error {
	v := req.Voucher

	if err := v.Validate(); err != nil {
		return ValidationError{Field: "voucher", Message: err.Error(), Err: err}
	}
	if v.Recipient == (common.Address{}) {
		return ValidationError{Field: "recipient", Message: "required", Err: ErrInvalidOwner}
	}
	if req.Payer == (common.Address{}) {
		return ValidationError{Field: "payer", Message: "required"}
	}
	if v.Price.Currency != e.currency {
		return ValidationError{Field: "price", Message: fmt.Sprintf("currency %q, want %q", v.Price.Currency, e.currency)}
	}

	signer, err := v.Signer(e.system, req.Signature)
	if err != nil {
		return err
	}
	if signer != e.authority {
		return fmt.Errorf("%w: recovered %s", ErrUnauthorizedSigner, signer.Hex())
	}

	if subscription.Units(v.Duration) == 0 {
		return ErrInvalidDuration
	}

	if err := e.guard.Check(ctx, req.Signature); err != nil {
		return err
	}

	// Only an upper bound: a voucher dated in the future is accepted.
	issuedAt := time.Unix(v.IssuedAt.Unix(), 0)
	if now.After(issuedAt.Add(e.freshness)) {
		return ErrVoucherExpired
	}

	if !req.Payment.Equal(v.Price) {
		return fmt.Errorf("%w: got %s, want %s", ErrPaymentMismatch, req.Payment, v.Price)
	}
	return nil
}

func (e *Engine) rejected(ctx context.Context, v voucher.Voucher, payer common.Address, amount types.Money, err error) {
	switch {
	case errors.Is(err, ErrPayoutFailed):
		e.logger.Warn("payout rejected", zap.Stringer("payer", payer), zap.Error(err))
		e.plugins.EmitPayoutFailed(ctx, payer, amount, err)
	case IsVoucherError(err), IsPaymentError(err):
		e.logger.Debug("voucher rejected", zap.Stringer("recipient", v.Recipient), zap.Error(err))
		e.plugins.EmitVoucherRejected(ctx, v, err)
	}
}

// ──────────────────────────────────────────────────
// Subscription lifecycle
// ──────────────────────────────────────────────────

// RenewRequest extends an asset's subscription.
type RenewRequest struct {
	AssetID  asset.ID
	Caller   common.Address
	Duration time.Duration
	Payment  types.Money
}

// Renew extends the subscription by req.Duration and returns the new
// expiration. An active subscription is extended from its current
// expiration; a lapsed one restarts from now while still renewable. The
// payment must equal unit price times whole units.
func (e *Engine) Renew(ctx context.Context, req RenewRequest) (time.Time, error) {
	release, err := e.locker.Lock(ctx, assetLockKey(req.AssetID))
	if err != nil {
		return time.Time{}, err
	}
	defer release()

	now := e.clock()

	var update *event.SubscriptionUpdate
	err = e.store.InTx(ctx, func(ctx context.Context) error {
		if err := e.requireUnpaused(ctx); err != nil {
			return err
		}
		if err := e.requireOwnerOrApproved(ctx, req.AssetID, req.Caller); err != nil {
			return err
		}
		if subscription.Units(req.Duration) == 0 {
			return ErrInvalidDuration
		}

		record, err := e.store.GetSubscriptionForUpdate(ctx, req.AssetID)
		if err != nil {
			return err
		}
		next, err := record.Next(req.Duration, now)
		if err != nil {
			return err
		}
		fee, err := quote(record, req.Duration)
		if err != nil {
			return err
		}
		if !req.Payment.Equal(fee) {
			return fmt.Errorf("%w: got %s, want %s", ErrPaymentMismatch, req.Payment, fee)
		}

		if _, err := e.payments.Pay(ctx, payment.Transfer{
			From:    req.Caller,
			Amount:  req.Payment,
			Reason:  payment.ReasonRenewal,
			AssetID: req.AssetID,
			At:      now,
		}); err != nil {
			return err
		}

		record.ExpiresAt = next
		record.Touch(now)
		if err := e.store.PutSubscription(ctx, record); err != nil {
			return fmt.Errorf("tenure: renew %d: %w", req.AssetID, err)
		}

		update = event.New(req.AssetID, next, event.ReasonRenewal, now)
		return e.store.AppendEvent(ctx, update)
	})
	if err != nil {
		if errors.Is(err, ErrPayoutFailed) {
			e.logger.Warn("payout rejected", zap.Stringer("payer", req.Caller), zap.Error(err))
			e.plugins.EmitPayoutFailed(ctx, req.Caller, req.Payment, err)
		}
		return time.Time{}, err
	}

	e.logger.Info("subscription renewed",
		zap.Uint64("asset_id", uint64(req.AssetID)),
		zap.Time("expires_at", update.NewExpiration),
	)
	e.plugins.EmitSubscriptionUpdated(ctx, update)
	return update.NewExpiration, nil
}

// Cancel clears the subscription record of id. The caller must be the
// owner, an approved account or the authority. Cancelling an asset with no
// subscription succeeds and still emits an update.
func (e *Engine) Cancel(ctx context.Context, id asset.ID, caller common.Address) error {
	release, err := e.locker.Lock(ctx, assetLockKey(id))
	if err != nil {
		return err
	}
	defer release()

	now := e.clock()

	var update *event.SubscriptionUpdate
	err = e.store.InTx(ctx, func(ctx context.Context) error {
		if err := e.requireUnpaused(ctx); err != nil {
			return err
		}
		if caller != e.authority {
			if err := e.requireOwnerOrApproved(ctx, id, caller); err != nil {
				return err
			}
		}

		if err := e.store.DeleteSubscription(ctx, id); err != nil {
			return fmt.Errorf("tenure: cancel %d: %w", id, err)
		}

		update = event.New(id, time.Time{}, event.ReasonCancellation, now)
		return e.store.AppendEvent(ctx, update)
	})
	if err != nil {
		return err
	}

	e.logger.Info("subscription canceled",
		zap.Uint64("asset_id", uint64(id)),
		zap.Stringer("caller", caller),
	)
	e.plugins.EmitSubscriptionUpdated(ctx, update)
	e.plugins.EmitSubscriptionCanceled(ctx, id, caller)
	return nil
}

// Destroy burns id through the registry. The registry's destroy hook clears
// the subscription record in the same transaction.
func (e *Engine) Destroy(ctx context.Context, id asset.ID, caller common.Address) error {
	release, err := e.locker.Lock(ctx, assetLockKey(id))
	if err != nil {
		return err
	}
	defer release()

	err = e.store.InTx(ctx, func(ctx context.Context) error {
		if err := e.requireUnpaused(ctx); err != nil {
			return err
		}
		return e.registry.DestroyAsset(ctx, id, caller)
	})
	if err != nil {
		return err
	}

	e.logger.Info("asset destroyed",
		zap.Uint64("asset_id", uint64(id)),
		zap.Stringer("caller", caller),
	)
	e.plugins.EmitAssetDestroyed(ctx, id, caller)
	return nil
}

// clearOnDestroy is registered as the registry's destroy hook.
func (e *Engine) clearOnDestroy(ctx context.Context, id asset.ID) error {
	return e.store.DeleteSubscription(ctx, id)
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// ExpiresAt returns the expiration of id, or the zero time if it has no
// subscription.
func (e *Engine) ExpiresAt(ctx context.Context, id asset.ID) (time.Time, error) {
	r, err := e.store.GetSubscription(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	return r.ExpiresAt, nil
}

// IsRenewable reports whether the renewable-until boundary of id has not
// passed.
func (e *Engine) IsRenewable(ctx context.Context, id asset.ID) (bool, error) {
	r, err := e.store.GetSubscription(ctx, id)
	if err != nil {
		return false, err
	}
	return r.Renewable(e.now()), nil
}

// Subscription returns the whole record of id. A missing subscription is a
// zero record, not an error.
func (e *Engine) Subscription(ctx context.Context, id asset.ID) (*subscription.Record, error) {
	return e.store.GetSubscription(ctx, id)
}

// UnitPrice returns the per-unit renewal price fixed for id at issuance.
func (e *Engine) UnitPrice(ctx context.Context, id asset.ID) (types.Money, error) {
	r, err := e.store.GetSubscription(ctx, id)
	if err != nil {
		return types.Money{}, err
	}
	return r.UnitPrice, nil
}

// Quote returns the renewal fee for extending id by d.
func (e *Engine) Quote(ctx context.Context, id asset.ID, d time.Duration) (types.Money, error) {
	r, err := e.store.GetSubscription(ctx, id)
	if err != nil {
		return types.Money{}, err
	}
	return quote(r, d)
}

func quote(r *subscription.Record, d time.Duration) (types.Money, error) {
	fee, err := r.Quote(d)
	if errors.Is(err, ErrFeeOverflow) {
		return types.Money{}, ValidationError{Field: "duration", Message: "renewal fee overflows", Err: err}
	}
	return fee, err
}

// Events lists subscription updates.
func (e *Engine) Events(ctx context.Context, opts event.ListOpts) ([]*event.SubscriptionUpdate, error) {
	return e.store.ListEvents(ctx, opts)
}

// Balance returns the authority's collected balance.
func (e *Engine) Balance(ctx context.Context) (types.Money, error) {
	return e.store.Balance(ctx, e.authority, e.currency)
}

// Receipts lists payments made by or to account.
func (e *Engine) Receipts(ctx context.Context, account common.Address, opts payment.ListOpts) ([]*payment.Receipt, error) {
	return e.store.ListReceipts(ctx, account, opts)
}

// ──────────────────────────────────────────────────
// Administration
// ──────────────────────────────────────────────────

// Pause stops every mutating operation. Only the authority may pause.
func (e *Engine) Pause(ctx context.Context, caller common.Address) error {
	return e.setPaused(ctx, caller, true)
}

// Unpause resumes mutating operations.
func (e *Engine) Unpause(ctx context.Context, caller common.Address) error {
	return e.setPaused(ctx, caller, false)
}

// Paused reports the global pause flag.
func (e *Engine) Paused(ctx context.Context) (bool, error) {
	return e.registry.Paused(ctx)
}

func (e *Engine) setPaused(ctx context.Context, caller common.Address, paused bool) error {
	if err := e.registry.SetPaused(ctx, caller, paused); err != nil {
		return err
	}
	e.plugins.EmitPauseChanged(ctx, paused)
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (e *Engine) requireUnpaused(ctx context.Context) error {
	paused, err := e.registry.Paused(ctx)
	if err != nil {
		return err
	}
	if paused {
		return ErrSystemPaused
	}
	return nil
}

func (e *Engine) requireOwnerOrApproved(ctx context.Context, id asset.ID, caller common.Address) error {
	ok, err := e.registry.IsOwnerOrApproved(ctx, id, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}
