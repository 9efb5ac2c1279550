// Package memory is an in-process store.Store for tests and single-node
// development. Transactions are serialized by a writer lock and staged on a
// copy of the state that replaces the committed state on success.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/payment"
	"github.com/xraph/tenure/replay"
	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/subscription"
	"github.com/xraph/tenure/types"
)

// Compile-time check.
var _ store.Store = (*Store)(nil)

type operatorKey struct {
	owner    common.Address
	operator common.Address
}

type balanceKey struct {
	account  common.Address
	currency string
}

type state struct {
	// Asset registry
	lastAssetID asset.ID
	assets      map[asset.ID]asset.Asset
	operators   map[operatorKey]struct{}
	paused      bool

	// Subscription records
	subscriptions map[asset.ID]subscription.Record

	// Consumed signatures
	redemptions map[string]replay.Redemption

	// Payments
	balances map[balanceKey]int64
	receipts []payment.Receipt

	// Outbox
	lastSeq int64
	events  []event.SubscriptionUpdate
}

func newState() *state {
	return &state{
		assets:        make(map[asset.ID]asset.Asset),
		operators:     make(map[operatorKey]struct{}),
		subscriptions: make(map[asset.ID]subscription.Record),
		redemptions:   make(map[string]replay.Redemption),
		balances:      make(map[balanceKey]int64),
	}
}

func (st *state) clone() *state {
	c := *st
	c.assets = maps.Clone(st.assets)
	c.operators = maps.Clone(st.operators)
	c.subscriptions = maps.Clone(st.subscriptions)
	c.redemptions = maps.Clone(st.redemptions)
	c.balances = maps.Clone(st.balances)
	c.receipts = slices.Clip(st.receipts)
	c.events = slices.Clip(st.events)
	return &c
}

// Store is the in-memory backend.
type Store struct {
	writer sync.Mutex // held for the duration of a transaction

	mu        sync.RWMutex // guards committed and closed
	committed *state
	closed    bool
}

type txKey struct{ s *Store }

// New returns an empty store.
func New() *Store {
	return &Store{committed: newState()}
}

// InTx implements asset.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{s}).(*state); ok {
		return fn(ctx)
	}

	s.writer.Lock()
	defer s.writer.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return store.ErrStoreClosed
	}
	staged := s.committed.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{s}, staged)); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = staged
	s.mu.Unlock()
	return nil
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if st, ok := ctx.Value(txKey{s}).(*state); ok {
		return fn(st)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrStoreClosed
	}
	return fn(s.committed)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(txKey{s}).(*state))
	})
}

// ──────────────────────────────────────────────────
// Asset registry
// ──────────────────────────────────────────────────

func (s *Store) NextAssetID(ctx context.Context) (asset.ID, error) {
	var id asset.ID
	err := s.write(ctx, func(st *state) error {
		st.lastAssetID++
		id = st.lastAssetID
		return nil
	})
	return id, err
}

func (s *Store) InsertAsset(ctx context.Context, a *asset.Asset) error {
	return s.write(ctx, func(st *state) error {
		if _, exists := st.assets[a.ID]; exists {
			return store.ErrAlreadyExists
		}
		st.assets[a.ID] = *a
		return nil
	})
}

func (s *Store) GetAsset(ctx context.Context, id asset.ID) (*asset.Asset, error) {
	var out *asset.Asset
	err := s.read(ctx, func(st *state) error {
		a, ok := st.assets[id]
		if !ok {
			return asset.ErrAssetNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (s *Store) UpdateAsset(ctx context.Context, a *asset.Asset) error {
	return s.write(ctx, func(st *state) error {
		if _, exists := st.assets[a.ID]; !exists {
			return asset.ErrAssetNotFound
		}
		st.assets[a.ID] = *a
		return nil
	})
}

func (s *Store) DeleteAsset(ctx context.Context, id asset.ID) error {
	return s.write(ctx, func(st *state) error {
		if _, exists := st.assets[id]; !exists {
			return asset.ErrAssetNotFound
		}
		delete(st.assets, id)
		return nil
	})
}

func (s *Store) ListAssetsByOwner(ctx context.Context, owner common.Address) ([]asset.ID, error) {
	var ids []asset.ID
	err := s.read(ctx, func(st *state) error {
		for id, a := range st.assets {
			if a.Owner == owner {
				ids = append(ids, id)
			}
		}
		return nil
	})
	slices.Sort(ids)
	return ids, err
}

func (s *Store) SetOperator(ctx context.Context, owner, operator common.Address, approved bool) error {
	return s.write(ctx, func(st *state) error {
		k := operatorKey{owner, operator}
		if approved {
			st.operators[k] = struct{}{}
		} else {
			delete(st.operators, k)
		}
		return nil
	})
}

func (s *Store) IsOperator(ctx context.Context, owner, operator common.Address) (bool, error) {
	var ok bool
	err := s.read(ctx, func(st *state) error {
		_, ok = st.operators[operatorKey{owner, operator}]
		return nil
	})
	return ok, err
}

func (s *Store) GetPaused(ctx context.Context) (bool, error) {
	var paused bool
	err := s.read(ctx, func(st *state) error {
		paused = st.paused
		return nil
	})
	return paused, err
}

func (s *Store) SetPaused(ctx context.Context, paused bool) error {
	return s.write(ctx, func(st *state) error {
		st.paused = paused
		return nil
	})
}

// ──────────────────────────────────────────────────
// Subscription records
// ──────────────────────────────────────────────────

func (s *Store) GetSubscription(ctx context.Context, id asset.ID) (*subscription.Record, error) {
	out := &subscription.Record{AssetID: id}
	err := s.read(ctx, func(st *state) error {
		if r, ok := st.subscriptions[id]; ok {
			*out = r
		}
		return nil
	})
	return out, err
}

// GetSubscriptionForUpdate is GetSubscription; the writer lock already
// serializes transactions.
func (s *Store) GetSubscriptionForUpdate(ctx context.Context, id asset.ID) (*subscription.Record, error) {
	return s.GetSubscription(ctx, id)
}

func (s *Store) PutSubscription(ctx context.Context, r *subscription.Record) error {
	return s.write(ctx, func(st *state) error {
		st.subscriptions[r.AssetID] = *r
		return nil
	})
}

func (s *Store) DeleteSubscription(ctx context.Context, id asset.ID) error {
	return s.write(ctx, func(st *state) error {
		delete(st.subscriptions, id)
		return nil
	})
}

// ──────────────────────────────────────────────────
// Consumed signatures
// ──────────────────────────────────────────────────

func (s *Store) IsConsumed(ctx context.Context, key string) (bool, error) {
	var used bool
	err := s.read(ctx, func(st *state) error {
		_, used = st.redemptions[key]
		return nil
	})
	return used, err
}

func (s *Store) InsertRedemption(ctx context.Context, r *replay.Redemption) error {
	return s.write(ctx, func(st *state) error {
		if _, used := st.redemptions[r.Key]; used {
			return replay.ErrReplayedSignature
		}
		st.redemptions[r.Key] = *r
		return nil
	})
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

func (s *Store) InsertReceipt(ctx context.Context, r *payment.Receipt) error {
	return s.write(ctx, func(st *state) error {
		st.receipts = append(st.receipts, *r)
		return nil
	})
}

func (s *Store) Credit(ctx context.Context, account common.Address, amount types.Money) error {
	return s.write(ctx, func(st *state) error {
		k := balanceKey{account, types.New(0, amount.Currency).Currency}
		st.balances[k] += amount.Amount
		return nil
	})
}

func (s *Store) Balance(ctx context.Context, account common.Address, currency string) (types.Money, error) {
	bal := types.Zero(currency)
	err := s.read(ctx, func(st *state) error {
		bal.Amount = st.balances[balanceKey{account, bal.Currency}]
		return nil
	})
	return bal, err
}

func (s *Store) ListReceipts(ctx context.Context, account common.Address, opts payment.ListOpts) ([]*payment.Receipt, error) {
	result := make([]*payment.Receipt, 0)
	err := s.read(ctx, func(st *state) error {
		for i := range st.receipts {
			r := st.receipts[i]
			if r.From == account || r.To == account {
				result = append(result, &r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Apply limit/offset
	start := min(max(opts.Offset, 0), len(result))
	end := len(result)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return result[start:end], nil
}

// ──────────────────────────────────────────────────
// Outbox
// ──────────────────────────────────────────────────

func (s *Store) AppendEvent(ctx context.Context, e *event.SubscriptionUpdate) error {
	return s.write(ctx, func(st *state) error {
		st.lastSeq++
		e.Seq = st.lastSeq
		st.events = append(st.events, *e)
		return nil
	})
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.SubscriptionUpdate, error) {
	result := make([]*event.SubscriptionUpdate, 0)
	err := s.read(ctx, func(st *state) error {
		for i := range st.events {
			e := st.events[i]
			if e.Seq <= opts.AfterSeq {
				continue
			}
			if opts.AssetID != 0 && e.AssetID != opts.AssetID {
				continue
			}
			result = append(result, &e)
			if opts.Limit > 0 && len(result) == opts.Limit {
				break
			}
		}
		return nil
	})
	return result, err
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
