// Package sqlite is a store.Store on SQLite through the grove sqlitedriver.
// It needs no external service, so it suits single-node deployments and
// tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the "sqlite" migration executor
	"github.com/xraph/grove/migrate"
	"go.uber.org/zap"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/payment"
	"github.com/xraph/tenure/replay"
	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/subscription"
	"github.com/xraph/tenure/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// builder is satisfied by both *sqlitedriver.SqliteDB and *sqlitedriver.SqliteTx.
type builder interface {
	NewSelect(model ...any) *sqlitedriver.SelectQuery
	NewInsert(model any) *sqlitedriver.InsertQuery
	NewUpdate(model any) *sqlitedriver.UpdateQuery
	NewDelete(model any) *sqlitedriver.DeleteQuery
	NewRaw(query string, args ...any) *sqlitedriver.RawQuery
}

type txKey struct{}

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db     *grove.DB
	sdb    *sqlitedriver.SqliteDB
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by Migrate.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		sdb:    sqlitedriver.Unwrap(db),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database at dsn. The pool holds a single connection:
// SQLite admits one writer, and a transaction keeps the connection until it
// ends, so callers queue instead of failing with SQLITE_BUSY.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, dsn, driver.WithPoolSize(1)); err != nil {
		return nil, fmt.Errorf("tenure/sqlite: open: %w", err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("tenure/sqlite: open: %w", err)
	}
	return New(db, opts...), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("%w: create migration executor: %w", store.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	res, err := orch.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrMigrationFailed, err)
	}
	s.logger.Debug("migrations up to date", zap.Int("applied", len(res.Applied)))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx implements asset.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlitedriver.SqliteTx); ok {
		return fn(ctx)
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrTransactionFailed, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) q(ctx context.Context) builder {
	if tx, ok := ctx.Value(txKey{}).(*sqlitedriver.SqliteTx); ok {
		return tx
	}
	return s.sdb
}

// ==================== Asset Store ====================

func (s *Store) NextAssetID(ctx context.Context) (asset.ID, error) {
	var n int64
	err := s.q(ctx).NewInsert(&counterModel{Name: "asset", Value: 1}).
		OnConflict("(name) DO UPDATE").
		Set("value = tenure_counters.value + 1").
		Returning("value").
		Scan(ctx, &n)
	if err != nil {
		return 0, err
	}
	return asset.ID(n), nil
}

func (s *Store) InsertAsset(ctx context.Context, a *asset.Asset) error {
	res, err := s.q(ctx).NewInsert(toAssetModel(a)).OnConflict("DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	inserted, err := affected(res)
	if err != nil {
		return err
	}
	if !inserted {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetAsset(ctx context.Context, id asset.ID) (*asset.Asset, error) {
	m := new(assetModel)
	err := s.q(ctx).NewSelect(m).Where("id = ?", int64(id)).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, asset.ErrAssetNotFound
		}
		return nil, err
	}
	return fromAssetModel(m), nil
}

func (s *Store) UpdateAsset(ctx context.Context, a *asset.Asset) error {
	res, err := s.q(ctx).NewUpdate((*assetModel)(nil)).
		Set("owner = ?", a.Owner.Hex()).
		Set("approved = ?", addressText(a.Approved)).
		Set("metadata_ref = ?", a.MetadataRef).
		Set("updated_at = ?", toMicros(a.UpdatedAt)).
		Where("id = ?", int64(a.ID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return notFoundIfNone(res)
}

func (s *Store) DeleteAsset(ctx context.Context, id asset.ID) error {
	res, err := s.q(ctx).NewDelete((*assetModel)(nil)).Where("id = ?", int64(id)).Exec(ctx)
	if err != nil {
		return err
	}
	return notFoundIfNone(res)
}

func (s *Store) ListAssetsByOwner(ctx context.Context, owner common.Address) ([]asset.ID, error) {
	var models []assetModel
	err := s.q(ctx).NewSelect(&models).
		Where("owner = ?", owner.Hex()).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]asset.ID, len(models))
	for i := range models {
		out[i] = asset.ID(models[i].ID)
	}
	return out, nil
}

func (s *Store) SetOperator(ctx context.Context, owner, operator common.Address, approved bool) error {
	var err error
	if approved {
		_, err = s.q(ctx).NewInsert(&operatorModel{Owner: owner.Hex(), Operator: operator.Hex()}).
			OnConflict("DO NOTHING").
			Exec(ctx)
	} else {
		_, err = s.q(ctx).NewDelete((*operatorModel)(nil)).
			Where("owner = ?", owner.Hex()).
			Where("operator = ?", operator.Hex()).
			Exec(ctx)
	}
	return err
}

func (s *Store) IsOperator(ctx context.Context, owner, operator common.Address) (bool, error) {
	var ok bool
	err := s.q(ctx).NewRaw(`
SELECT EXISTS (SELECT 1 FROM tenure_operators WHERE owner = ? AND operator = ?)`,
		owner.Hex(), operator.Hex()).Scan(ctx, &ok)
	return ok, err
}

func (s *Store) GetPaused(ctx context.Context) (bool, error) {
	m := new(settingModel)
	err := s.q(ctx).NewSelect(m).Where("key = ?", "paused").Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return strconv.ParseBool(m.Value)
}

func (s *Store) SetPaused(ctx context.Context, paused bool) error {
	_, err := s.q(ctx).NewInsert(&settingModel{Key: "paused", Value: strconv.FormatBool(paused)}).
		OnConflict("(key) DO UPDATE").
		Set("value = excluded.value").
		Exec(ctx)
	return err
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, id asset.ID) (*subscription.Record, error) {
	m := new(subscriptionModel)
	if err := s.q(ctx).NewSelect(m).Where("asset_id = ?", int64(id)).Scan(ctx); err != nil {
		if isNoRows(err) {
			return &subscription.Record{AssetID: id}, nil
		}
		return nil, err
	}
	return fromSubscriptionModel(m), nil
}

// GetSubscriptionForUpdate is GetSubscription. The single pooled connection
// already serializes every transaction.
func (s *Store) GetSubscriptionForUpdate(ctx context.Context, id asset.ID) (*subscription.Record, error) {
	return s.GetSubscription(ctx, id)
}

func (s *Store) PutSubscription(ctx context.Context, r *subscription.Record) error {
	_, err := s.q(ctx).NewInsert(toSubscriptionModel(r)).
		OnConflict("(asset_id) DO UPDATE").
		Set("expires_at = excluded.expires_at").
		Set("renewable_until = excluded.renewable_until").
		Set("unit_price = excluded.unit_price").
		Set("currency = excluded.currency").
		Set("updated_at = excluded.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) DeleteSubscription(ctx context.Context, id asset.ID) error {
	_, err := s.q(ctx).NewDelete((*subscriptionModel)(nil)).Where("asset_id = ?", int64(id)).Exec(ctx)
	return err
}

// ==================== Replay Store ====================

func (s *Store) IsConsumed(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.q(ctx).NewRaw(
		`SELECT EXISTS (SELECT 1 FROM tenure_redemptions WHERE key = ?)`, key).Scan(ctx, &ok)
	return ok, err
}

func (s *Store) InsertRedemption(ctx context.Context, r *replay.Redemption) error {
	res, err := s.q(ctx).NewInsert(toRedemptionModel(r)).OnConflict("DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	inserted, err := affected(res)
	if err != nil {
		return err
	}
	if !inserted {
		return replay.ErrReplayedSignature
	}
	return nil
}

// ==================== Payment Store ====================

func (s *Store) InsertReceipt(ctx context.Context, r *payment.Receipt) error {
	_, err := s.q(ctx).NewInsert(toReceiptModel(r)).Exec(ctx)
	return err
}

func (s *Store) Credit(ctx context.Context, account common.Address, amount types.Money) error {
	amount = types.New(amount.Amount, amount.Currency)
	_, err := s.q(ctx).NewInsert(&balanceModel{
		Account:  account.Hex(),
		Currency: amount.Currency,
		Amount:   amount.Amount,
	}).
		OnConflict("(account, currency) DO UPDATE").
		Set("amount = tenure_balances.amount + excluded.amount").
		Exec(ctx)
	return err
}

func (s *Store) Balance(ctx context.Context, account common.Address, currency string) (types.Money, error) {
	bal := types.Zero(currency)
	m := new(balanceModel)
	err := s.q(ctx).NewSelect(m).
		Where("account = ?", account.Hex()).
		Where("currency = ?", bal.Currency).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return bal, nil
		}
		return types.Money{}, err
	}
	bal.Amount = m.Amount
	return bal, nil
}

func (s *Store) ListReceipts(ctx context.Context, account common.Address, opts payment.ListOpts) ([]*payment.Receipt, error) {
	var models []receiptModel
	q := s.q(ctx).NewSelect(&models).
		Where("(from_addr = ? OR to_addr = ?)", account.Hex(), account.Hex()).
		OrderExpr("seq ASC")
	switch {
	case opts.Limit > 0:
		q = q.Limit(opts.Limit)
	case opts.Offset > 0:
		// OFFSET is only valid after LIMIT.
		q = q.Limit(math.MaxInt32)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*payment.Receipt, 0, len(models))
	for i := range models {
		r, err := fromReceiptModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

// ==================== Event Store ====================

func (s *Store) AppendEvent(ctx context.Context, e *event.SubscriptionUpdate) error {
	return s.q(ctx).NewInsert(toEventModel(e)).
		Returning("seq").
		Scan(ctx, &e.Seq)
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.SubscriptionUpdate, error) {
	var models []eventModel
	q := s.q(ctx).NewSelect(&models).Where("seq > ?", opts.AfterSeq)
	if opts.AssetID != 0 {
		q = q.Where("asset_id = ?", int64(opts.AssetID))
	}
	q = q.OrderExpr("seq ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.SubscriptionUpdate, 0, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// ==================== Helpers ====================

func affected(res driver.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func notFoundIfNone(res driver.Result) error {
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return asset.ErrAssetNotFound
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
