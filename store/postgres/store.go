// Package postgres is a store.Store on PostgreSQL through the grove pgdriver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the "pg" migration executor
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

const uniqueViolation = "23505"

// builder is satisfied by both *pgdriver.PgDB and *pgdriver.PgTx.
type builder interface {
	NewSelect(model ...any) *pgdriver.SelectQuery
	NewInsert(model any) *pgdriver.InsertQuery
	NewUpdate(model any) *pgdriver.UpdateQuery
	NewDelete(model any) *pgdriver.DeleteQuery
	NewRaw(query string, args ...any) *pgdriver.RawQuery
}

type txKey struct{}

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db     *grove.DB
	pg     *pgdriver.PgDB
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by Migrate.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		pg:     pgdriver.Unwrap(db),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pg := pgdriver.New()
	if err := pg.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("tenure/postgres: connect: %w", err)
	}
	db, err := grove.Open(pg)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("tenure/postgres: open: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tenure/postgres: ping: %w", err)
	}
	return New(db, opts...), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
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
	if _, ok := ctx.Value(txKey{}).(*pgdriver.PgTx); ok {
		return fn(ctx)
	}

	tx, err := s.pg.BeginTxQuery(ctx, nil)
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
	if tx, ok := ctx.Value(txKey{}).(*pgdriver.PgTx); ok {
		return tx
	}
	return s.pg
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
	_, err := s.q(ctx).NewInsert(toAssetModel(a)).Exec(ctx)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetAsset(ctx context.Context, id asset.ID) (*asset.Asset, error) {
	m := new(assetModel)
	err := s.q(ctx).NewSelect(m).Where("id = $1", int64(id)).Scan(ctx)
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
		Set("updated_at = ?", a.UpdatedAt).
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
		Where("owner = $1", owner.Hex()).
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
SELECT EXISTS (SELECT 1 FROM tenure_operators WHERE owner = $1 AND operator = $2)`,
		owner.Hex(), operator.Hex()).Scan(ctx, &ok)
	return ok, err
}

func (s *Store) GetPaused(ctx context.Context) (bool, error) {
	m := new(settingModel)
	err := s.q(ctx).NewSelect(m).Where("key = $1", "paused").Scan(ctx)
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
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, id asset.ID) (*subscription.Record, error) {
	return s.getSubscription(ctx, id, false)
}

func (s *Store) GetSubscriptionForUpdate(ctx context.Context, id asset.ID) (*subscription.Record, error) {
	return s.getSubscription(ctx, id, true)
}

func (s *Store) getSubscription(ctx context.Context, id asset.ID, forUpdate bool) (*subscription.Record, error) {
	m := new(subscriptionModel)
	q := s.q(ctx).NewSelect(m).Where("asset_id = $1", int64(id))
	if forUpdate {
		q = q.ForUpdate()
	}
	if err := q.Scan(ctx); err != nil {
		if isNoRows(err) {
			return &subscription.Record{AssetID: id}, nil
		}
		return nil, err
	}
	return fromSubscriptionModel(m), nil
}

func (s *Store) PutSubscription(ctx context.Context, r *subscription.Record) error {
	_, err := s.q(ctx).NewInsert(toSubscriptionModel(r)).
		OnConflict("(asset_id) DO UPDATE").
		Set("expires_at = EXCLUDED.expires_at").
		Set("renewable_until = EXCLUDED.renewable_until").
		Set("unit_price = EXCLUDED.unit_price").
		Set("currency = EXCLUDED.currency").
		Set("updated_at = EXCLUDED.updated_at").
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
		`SELECT EXISTS (SELECT 1 FROM tenure_redemptions WHERE key = $1)`, key).Scan(ctx, &ok)
	return ok, err
}

func (s *Store) InsertRedemption(ctx context.Context, r *replay.Redemption) error {
	_, err := s.q(ctx).NewInsert(toRedemptionModel(r)).Exec(ctx)
	if isUniqueViolation(err) {
		return replay.ErrReplayedSignature
	}
	return err
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
		Set("amount = tenure_balances.amount + EXCLUDED.amount").
		Exec(ctx)
	return err
}

func (s *Store) Balance(ctx context.Context, account common.Address, currency string) (types.Money, error) {
	bal := types.Zero(currency)
	m := new(balanceModel)
	err := s.q(ctx).NewSelect(m).
		Where("account = $1", account.Hex()).
		Where("currency = $2", bal.Currency).
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
		Where("(from_addr = $1 OR to_addr = $1)", account.Hex()).
		OrderExpr("seq ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
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
	q := s.q(ctx).NewSelect(&models).Where("seq > $1", opts.AfterSeq)
	if opts.AssetID != 0 {
		q = q.Where("asset_id = $2", int64(opts.AssetID))
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

func notFoundIfNone(res driver.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return asset.ErrAssetNotFound
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
