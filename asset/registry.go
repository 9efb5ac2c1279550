package asset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/xraph/tenure/types"
)

// DestroyHook is invoked inside the destroying transaction before the asset
// is removed. A hook error aborts the destruction.
type DestroyHook func(ctx context.Context, id ID) error

// Registry is the asset registry consumed by the engine.
type Registry interface {
	CreateAsset(ctx context.Context, owner common.Address, metadataRef string) (ID, error)
	DestroyAsset(ctx context.Context, id ID, caller common.Address) error
	IsOwnerOrApproved(ctx context.Context, id ID, caller common.Address) (bool, error)
	OwnerOf(ctx context.Context, id ID) (common.Address, error)
	MetadataRef(ctx context.Context, id ID) (string, error)
	Transfer(ctx context.Context, id ID, caller, to common.Address) error
	Approve(ctx context.Context, id ID, caller, approved common.Address) error
	SetApprovalForAll(ctx context.Context, owner, operator common.Address, approved bool) error
	AssetsOf(ctx context.Context, owner common.Address) ([]ID, error)
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, caller common.Address, paused bool) error
	Authority() common.Address
	OnDestroy(hook DestroyHook)
}

// StoreRegistry is a Registry persisted in an asset Store, so asset creation
// and destruction share the caller's transaction.
type StoreRegistry struct {
	store     Store
	authority common.Address
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.RWMutex
	hooks []DestroyHook
}

// Compile-time check.
var _ Registry = (*StoreRegistry)(nil)

// RegistryOption configures a StoreRegistry.
type RegistryOption func(*StoreRegistry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *StoreRegistry) { r.logger = logger }
}

// WithRegistryClock sets the clock used for entity timestamps.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *StoreRegistry) { r.now = now }
}

// NewRegistry returns a registry administered by authority.
func NewRegistry(s Store, authority common.Address, opts ...RegistryOption) *StoreRegistry {
	r := &StoreRegistry{
		store:     s,
		authority: authority,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Authority returns the administrative account.
func (r *StoreRegistry) Authority() common.Address { return r.authority }

// OnDestroy registers a hook run by DestroyAsset.
func (r *StoreRegistry) OnDestroy(hook DestroyHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// CreateAsset allocates the next ID and assigns it to owner.
func (r *StoreRegistry) CreateAsset(ctx context.Context, owner common.Address, metadataRef string) (ID, error) {
	if owner == (common.Address{}) {
		return 0, ErrInvalidOwner
	}

	var id ID
	err := r.store.InTx(ctx, func(ctx context.Context) error {
		if err := r.requireUnpaused(ctx); err != nil {
			return err
		}

		next, err := r.store.NextAssetID(ctx)
		if err != nil {
			return fmt.Errorf("tenure/asset: allocate id: %w", err)
		}

		a := &Asset{Entity: types.NewEntity(r.now()), ID: next, Owner: owner, MetadataRef: metadataRef}
		if err := r.store.InsertAsset(ctx, a); err != nil {
			return fmt.Errorf("tenure/asset: insert %d: %w", next, err)
		}
		id = next
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Debug("asset created", zap.Uint64("asset_id", uint64(id)), zap.Stringer("owner", owner))
	return id, nil
}

// DestroyAsset burns id. The caller must be the owner or approved. Destroy
// hooks run first, in registration order, inside the same transaction.
func (r *StoreRegistry) DestroyAsset(ctx context.Context, id ID, caller common.Address) error {
	r.mu.RLock()
	hooks := append([]DestroyHook(nil), r.hooks...)
	r.mu.RUnlock()

	err := r.store.InTx(ctx, func(ctx context.Context) error {
		if err := r.requireUnpaused(ctx); err != nil {
			return err
		}

		a, err := r.store.GetAsset(ctx, id)
		if err != nil {
			return err
		}
		ok, err := r.authorized(ctx, a, caller)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAuthorized
		}

		for _, hook := range hooks {
			if err := hook(ctx, id); err != nil {
				return fmt.Errorf("tenure/asset: destroy hook for %d: %w", id, err)
			}
		}
		return r.store.DeleteAsset(ctx, id)
	})
	if err != nil {
		return err
	}

	r.logger.Debug("asset destroyed", zap.Uint64("asset_id", uint64(id)))
	return nil
}

// IsOwnerOrApproved reports whether caller may act on id. A missing asset
// yields false without an error.
func (r *StoreRegistry) IsOwnerOrApproved(ctx context.Context, id ID, caller common.Address) (bool, error) {
	a, err := r.store.GetAsset(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return r.authorized(ctx, a, caller)
}

// OwnerOf returns the current owner of id.
func (r *StoreRegistry) OwnerOf(ctx context.Context, id ID) (common.Address, error) {
	a, err := r.store.GetAsset(ctx, id)
	if err != nil {
		return common.Address{}, err
	}
	return a.Owner, nil
}

// MetadataRef returns the metadata reference recorded at creation.
func (r *StoreRegistry) MetadataRef(ctx context.Context, id ID) (string, error) {
	a, err := r.store.GetAsset(ctx, id)
	if err != nil {
		return "", err
	}
	return a.MetadataRef, nil
}

// Transfer moves id to a new owner and clears its single approval.
func (r *StoreRegistry) Transfer(ctx context.Context, id ID, caller, to common.Address) error {
	if to == (common.Address{}) {
		return ErrInvalidOwner
	}

	return r.store.InTx(ctx, func(ctx context.Context) error {
		if err := r.requireUnpaused(ctx); err != nil {
			return err
		}

		a, err := r.store.GetAsset(ctx, id)
		if err != nil {
			return err
		}
		ok, err := r.authorized(ctx, a, caller)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAuthorized
		}

		a.Owner = to
		a.Approved = common.Address{}
		a.Touch(r.now())
		return r.store.UpdateAsset(ctx, a)
	})
}

// Approve sets the single approved address for id. The caller must be the
// owner or one of the owner's operators.
func (r *StoreRegistry) Approve(ctx context.Context, id ID, caller, approved common.Address) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		a, err := r.store.GetAsset(ctx, id)
		if err != nil {
			return err
		}
		if a.Owner != caller {
			op, err := r.store.IsOperator(ctx, a.Owner, caller)
			if err != nil {
				return err
			}
			if !op {
				return ErrNotAuthorized
			}
		}

		a.Approved = approved
		a.Touch(r.now())
		return r.store.UpdateAsset(ctx, a)
	})
}

// SetApprovalForAll grants or revokes operator rights over all of owner's
// assets.
func (r *StoreRegistry) SetApprovalForAll(ctx context.Context, owner, operator common.Address, approved bool) error {
	if owner == operator {
		return ErrNotAuthorized
	}
	return r.store.SetOperator(ctx, owner, operator, approved)
}

// AssetsOf enumerates the assets held by owner in ascending ID order.
func (r *StoreRegistry) AssetsOf(ctx context.Context, owner common.Address) ([]ID, error) {
	return r.store.ListAssetsByOwner(ctx, owner)
}

// Paused reports the global pause flag.
func (r *StoreRegistry) Paused(ctx context.Context) (bool, error) {
	return r.store.GetPaused(ctx)
}

// SetPaused flips the pause flag. Only the authority may call it.
func (r *StoreRegistry) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	if caller != r.authority {
		return ErrNotAuthorized
	}
	if err := r.store.SetPaused(ctx, paused); err != nil {
		return err
	}
	r.logger.Info("pause flag changed", zap.Bool("paused", paused), zap.Stringer("caller", caller))
	return nil
}

func (r *StoreRegistry) requireUnpaused(ctx context.Context) error {
	paused, err := r.store.GetPaused(ctx)
	if err != nil {
		return err
	}
	if paused {
		return ErrSystemPaused
	}
	return nil
}

func (r *StoreRegistry) authorized(ctx context.Context, a *Asset, caller common.Address) (bool, error) {
	if caller == (common.Address{}) {
		return false, nil
	}
	if a.Owner == caller || a.Approved == caller {
		return true, nil
	}
	return r.store.IsOperator(ctx, a.Owner, caller)
}
