// Package mongo is a store.Store on MongoDB through the grove mongodriver.
// Transactions require a replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/payment"
	"github.com/xraph/tenure/replay"
	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/subscription"
	"github.com/xraph/tenure/types"
)

// Collection name constants.
const (
	colCounters      = "tenure_counters"
	colAssets        = "tenure_assets"
	colOperators     = "tenure_operators"
	colSettings      = "tenure_settings"
	colSubscriptions = "tenure_subscriptions"
	colRedemptions   = "tenure_redemptions"
	colBalances      = "tenure_balances"
	colReceipts      = "tenure_receipts"
	colEvents        = "tenure_events"
)

// Counter names.
const (
	counterAsset   = "asset"
	counterEvent   = "event"
	counterReceipt = "receipt"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Open connects to uri and uses database name. An empty name falls back to
// the database in the URI path.
func Open(ctx context.Context, uri, name string) (*Store, error) {
	mdb := mongodriver.New()
	var opts []mongodriver.MongoOption
	if name != "" {
		opts = append(opts, mongodriver.WithDatabase(name))
	}
	if err := mdb.Open(ctx, uri, opts...); err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("tenure/mongo: connect: %w", err)
	}
	db, err := grove.Open(mdb)
	if err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("tenure/mongo: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tenure collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: tenure/mongo: %s indexes: %w", store.ErrMigrationFailed, col, err)
		}
	}
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

// InTx implements asset.Store with a session transaction. A context that
// already carries a session joins it. Builders run against the session
// carried by ctx, so every query inside fn participates.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.mdb.Client().StartSession()
	if err != nil {
		return fmt.Errorf("%w: tenure/mongo: start session: %w", store.ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func (s *Store) next(ctx context.Context, name string) (int64, error) {
	var c counterModel
	err := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("tenure/mongo: counter %s: %w", name, err)
	}
	return c.Value, nil
}

// ==================== Asset Store ====================

func (s *Store) NextAssetID(ctx context.Context) (asset.ID, error) {
	n, err := s.next(ctx, counterAsset)
	return asset.ID(n), err
}

func (s *Store) InsertAsset(ctx context.Context, a *asset.Asset) error {
	_, err := s.mdb.NewInsert(toAssetModel(a)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("tenure/mongo: insert asset: %w", err)
	}
	return nil
}

func (s *Store) GetAsset(ctx context.Context, id asset.ID) (*asset.Asset, error) {
	var m assetModel
	err := s.mdb.NewFind(&m).Filter(bson.M{"_id": int64(id)}).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, asset.ErrAssetNotFound
		}
		return nil, fmt.Errorf("tenure/mongo: get asset: %w", err)
	}
	return fromAssetModel(&m), nil
}

func (s *Store) UpdateAsset(ctx context.Context, a *asset.Asset) error {
	m := toAssetModel(a)
	res, err := s.mdb.NewUpdate((*assetModel)(nil)).
		Filter(bson.M{"_id": m.ID}).
		Set("owner", m.Owner).
		Set("approved", m.Approved).
		Set("metadata_ref", m.MetadataRef).
		Set("updated_at", m.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenure/mongo: update asset: %w", err)
	}
	if res.MatchedCount() == 0 {
		return asset.ErrAssetNotFound
	}
	return nil
}

func (s *Store) DeleteAsset(ctx context.Context, id asset.ID) error {
	res, err := s.mdb.NewDelete((*assetModel)(nil)).
		Filter(bson.M{"_id": int64(id)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenure/mongo: delete asset: %w", err)
	}
	if res.DeletedCount() == 0 {
		return asset.ErrAssetNotFound
	}
	return nil
}

func (s *Store) ListAssetsByOwner(ctx context.Context, owner common.Address) ([]asset.ID, error) {
	var models []assetModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"owner": owner.Hex()}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tenure/mongo: list assets: %w", err)
	}

	ids := make([]asset.ID, len(models))
	for i := range models {
		ids[i] = asset.ID(models[i].ID)
	}
	return ids, nil
}

func operatorID(owner, operator common.Address) string {
	return owner.Hex() + "|" + operator.Hex()
}

func (s *Store) SetOperator(ctx context.Context, owner, operator common.Address, approved bool) error {
	key := operatorID(owner, operator)

	var err error
	if approved {
		_, err = s.mdb.NewUpdate((*operatorModel)(nil)).
			Filter(bson.M{"_id": key}).
			Set("owner", owner.Hex()).
			Set("operator", operator.Hex()).
			Upsert().
			Exec(ctx)
	} else {
		_, err = s.mdb.NewDelete((*operatorModel)(nil)).
			Filter(bson.M{"_id": key}).
			Exec(ctx)
	}
	if err != nil {
		return fmt.Errorf("tenure/mongo: set operator: %w", err)
	}
	return nil
}

func (s *Store) IsOperator(ctx context.Context, owner, operator common.Address) (bool, error) {
	n, err := s.mdb.NewFind((*operatorModel)(nil)).
		Filter(bson.M{"_id": operatorID(owner, operator)}).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("tenure/mongo: is operator: %w", err)
	}
	return n > 0, nil
}

func (s *Store) GetPaused(ctx context.Context) (bool, error) {
	var m settingModel
	err := s.mdb.NewFind(&m).Filter(bson.M{"_id": "paused"}).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return false, nil
		}
		return false, fmt.Errorf("tenure/mongo: get paused: %w", err)
	}
	return m.Value, nil
}

func (s *Store) SetPaused(ctx context.Context, paused bool) error {
	_, err := s.mdb.NewUpdate((*settingModel)(nil)).
		Filter(bson.M{"_id": "paused"}).
		Set("value", paused).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenure/mongo: set paused: %w", err)
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, id asset.ID) (*subscription.Record, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).Filter(bson.M{"_id": int64(id)}).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return &subscription.Record{AssetID: id}, nil
		}
		return nil, fmt.Errorf("tenure/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m), nil
}

// GetSubscriptionForUpdate is GetSubscription. Concurrent writers to the
// same document inside transactions fail with a write conflict, which
// WithTransaction retries.
func (s *Store) GetSubscriptionForUpdate(ctx context.Context, id asset.ID) (*subscription.Record, error) {
	return s.GetSubscription(ctx, id)
}

func (s *Store) PutSubscription(ctx context.Context, r *subscription.Record) error {
	m := toSubscriptionModel(r)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.AssetID}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenure/mongo: put subscription: %w", err)
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, id asset.ID) error {
	_, err := s.mdb.NewDelete((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": int64(id)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenure/mongo: delete subscription: %w", err)
	}
	return nil
}

// ==================== Replay Store ====================

func (s *Store) IsConsumed(ctx context.Context, key string) (bool, error) {
	n, err := s.mdb.NewFind((*redemptionModel)(nil)).Filter(bson.M{"_id": key}).Count(ctx)
	if err != nil {
		return false, fmt.Errorf("tenure/mongo: is consumed: %w", err)
	}
	return n > 0, nil
}

func (s *Store) InsertRedemption(ctx context.Context, r *replay.Redemption) error {
	_, err := s.mdb.NewInsert(toRedemptionModel(r)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return replay.ErrReplayedSignature
		}
		return fmt.Errorf("tenure/mongo: insert redemption: %w", err)
	}
	return nil
}

// ==================== Payment Store ====================

func (s *Store) InsertReceipt(ctx context.Context, r *payment.Receipt) error {
	seq, err := s.next(ctx, counterReceipt)
	if err != nil {
		return err
	}
	if _, err := s.mdb.NewInsert(toReceiptModel(r, seq)).Exec(ctx); err != nil {
		return fmt.Errorf("tenure/mongo: insert receipt: %w", err)
	}
	return nil
}

func (s *Store) Credit(ctx context.Context, account common.Address, amount types.Money) error {
	amount = types.New(amount.Amount, amount.Currency)
	key := account.Hex() + "|" + amount.Currency
	_, err := s.mdb.NewUpdate((*balanceModel)(nil)).
		Filter(bson.M{"_id": key}).
		SetUpdate(bson.M{
			"$inc":         bson.M{"amount": amount.Amount},
			"$setOnInsert": bson.M{"account": account.Hex(), "currency": amount.Currency},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenure/mongo: credit: %w", err)
	}
	return nil
}

func (s *Store) Balance(ctx context.Context, account common.Address, currency string) (types.Money, error) {
	bal := types.Zero(currency)
	var m balanceModel
	err := s.mdb.NewFind(&m).Filter(bson.M{"_id": account.Hex() + "|" + bal.Currency}).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return bal, nil
		}
		return types.Money{}, fmt.Errorf("tenure/mongo: balance: %w", err)
	}
	bal.Amount = m.Amount
	return bal, nil
}

func (s *Store) ListReceipts(ctx context.Context, account common.Address, opts payment.ListOpts) ([]*payment.Receipt, error) {
	filter := bson.M{"$or": bson.A{bson.M{"from": account.Hex()}, bson.M{"to": account.Hex()}}}
	var models []receiptModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tenure/mongo: list receipts: %w", err)
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
	seq, err := s.next(ctx, counterEvent)
	if err != nil {
		return err
	}
	e.Seq = seq
	if _, err := s.mdb.NewInsert(toEventModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("tenure/mongo: append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.SubscriptionUpdate, error) {
	filter := bson.M{"_id": bson.M{"$gt": opts.AfterSeq}}
	if opts.AssetID != 0 {
		filter["asset_id"] = int64(opts.AssetID)
	}
	var models []eventModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tenure/mongo: list events: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tenure collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAssets: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colOperators: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "operator", Value: 1}}},
		},
		colReceipts: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "from", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "to", Value: 1}, {Key: "seq", Value: 1}}},
		},
		colEvents: {
			{
				Keys:    bson.D{{Key: "event_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "asset_id", Value: 1}, {Key: "_id", Value: 1}}},
		},
	}
}
