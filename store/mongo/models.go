package mongo

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/id"
	"github.com/xraph/tenure/payment"
	"github.com/xraph/tenure/replay"
	"github.com/xraph/tenure/subscription"
	"github.com/xraph/tenure/types"
)

// ==================== Asset models ====================

type counterModel struct {
	grove.BaseModel `grove:"table:tenure_counters"`

	ID    string `grove:"id,pk" bson:"_id"`
	Value int64  `grove:"value" bson:"value"`
}

type assetModel struct {
	grove.BaseModel `grove:"table:tenure_assets"`

	ID          int64     `grove:"id,pk" bson:"_id"`
	Owner       string    `grove:"owner" bson:"owner"`
	Approved    string    `grove:"approved" bson:"approved"`
	MetadataRef string    `grove:"metadata_ref" bson:"metadata_ref"`
	CreatedAt   time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at" bson:"updated_at"`
}

func toAssetModel(a *asset.Asset) *assetModel {
	m := &assetModel{
		ID:          int64(a.ID),
		Owner:       a.Owner.Hex(),
		MetadataRef: a.MetadataRef,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if a.Approved != (common.Address{}) {
		m.Approved = a.Approved.Hex()
	}
	return m
}

func fromAssetModel(m *assetModel) *asset.Asset {
	a := &asset.Asset{
		Entity:      types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:          asset.ID(m.ID),
		Owner:       common.HexToAddress(m.Owner),
		MetadataRef: m.MetadataRef,
	}
	if m.Approved != "" {
		a.Approved = common.HexToAddress(m.Approved)
	}
	return a
}

type operatorModel struct {
	grove.BaseModel `grove:"table:tenure_operators"`

	ID       string `grove:"id,pk" bson:"_id"`
	Owner    string `grove:"owner" bson:"owner"`
	Operator string `grove:"operator" bson:"operator"`
}

type settingModel struct {
	grove.BaseModel `grove:"table:tenure_settings"`

	ID    string `grove:"id,pk" bson:"_id"`
	Value bool   `grove:"value" bson:"value"`
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:tenure_subscriptions"`

	AssetID        int64     `grove:"id,pk" bson:"_id"`
	ExpiresAt      time.Time `grove:"expires_at" bson:"expires_at"`
	RenewableUntil time.Time `grove:"renewable_until" bson:"renewable_until"`
	UnitPrice      int64     `grove:"unit_price" bson:"unit_price"`
	Currency       string    `grove:"currency" bson:"currency"`
	CreatedAt      time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at" bson:"updated_at"`
}

func toSubscriptionModel(r *subscription.Record) *subscriptionModel {
	return &subscriptionModel{
		AssetID:        int64(r.AssetID),
		ExpiresAt:      r.ExpiresAt,
		RenewableUntil: r.RenewableUntil,
		UnitPrice:      r.UnitPrice.Amount,
		Currency:       r.UnitPrice.Currency,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) *subscription.Record {
	return &subscription.Record{
		Entity:         types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		AssetID:        asset.ID(m.AssetID),
		ExpiresAt:      m.ExpiresAt.UTC(),
		RenewableUntil: m.RenewableUntil.UTC(),
		UnitPrice:      types.New(m.UnitPrice, m.Currency),
	}
}

// ==================== Replay models ====================

type redemptionModel struct {
	grove.BaseModel `grove:"table:tenure_redemptions"`

	Key        string    `grove:"id,pk" bson:"_id"`
	ID         string    `grove:"redemption_id" bson:"redemption_id"`
	ConsumedAt time.Time `grove:"consumed_at" bson:"consumed_at"`
}

func toRedemptionModel(r *replay.Redemption) *redemptionModel {
	return &redemptionModel{Key: r.Key, ID: r.ID.String(), ConsumedAt: r.ConsumedAt}
}

// ==================== Payment models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:tenure_balances"`

	ID       string `grove:"id,pk" bson:"_id"`
	Account  string `grove:"account" bson:"account"`
	Currency string `grove:"currency" bson:"currency"`
	Amount   int64  `grove:"amount" bson:"amount"`
}

type receiptModel struct {
	grove.BaseModel `grove:"table:tenure_receipts"`

	ID        string    `grove:"id,pk" bson:"_id"`
	Seq       int64     `grove:"seq" bson:"seq"`
	From      string    `grove:"from" bson:"from"`
	To        string    `grove:"to" bson:"to"`
	Amount    int64     `grove:"amount" bson:"amount"`
	Currency  string    `grove:"currency" bson:"currency"`
	Reason    string    `grove:"reason" bson:"reason"`
	AssetID   int64     `grove:"asset_id" bson:"asset_id"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
}

func toReceiptModel(r *payment.Receipt, seq int64) *receiptModel {
	return &receiptModel{
		ID:        r.ID.String(),
		Seq:       seq,
		From:      r.From.Hex(),
		To:        r.To.Hex(),
		Amount:    r.Amount.Amount,
		Currency:  r.Amount.Currency,
		Reason:    string(r.Reason),
		AssetID:   int64(r.AssetID),
		CreatedAt: r.CreatedAt,
	}
}

func fromReceiptModel(m *receiptModel) (*payment.Receipt, error) {
	rid, err := id.ParseReceiptID(m.ID)
	if err != nil {
		return nil, err
	}
	return &payment.Receipt{
		ID:        rid,
		From:      common.HexToAddress(m.From),
		To:        common.HexToAddress(m.To),
		Amount:    types.New(m.Amount, m.Currency),
		Reason:    payment.Reason(m.Reason),
		AssetID:   asset.ID(m.AssetID),
		CreatedAt: m.CreatedAt.UTC(),
	}, nil
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:tenure_events"`

	Seq           int64      `grove:"id,pk" bson:"_id"`
	ID            string     `grove:"event_id" bson:"event_id"`
	AssetID       int64      `grove:"asset_id" bson:"asset_id"`
	NewExpiration *time.Time `grove:"new_expiration" bson:"new_expiration,omitempty"`
	Reason        string     `grove:"reason" bson:"reason"`
	At            time.Time  `grove:"at" bson:"at"`
}

func toEventModel(e *event.SubscriptionUpdate) *eventModel {
	m := &eventModel{
		Seq:     e.Seq,
		ID:      e.ID.String(),
		AssetID: int64(e.AssetID),
		Reason:  string(e.Reason),
		At:      e.At,
	}
	if !e.NewExpiration.IsZero() {
		t := e.NewExpiration
		m.NewExpiration = &t
	}
	return m
}

func fromEventModel(m *eventModel) (*event.SubscriptionUpdate, error) {
	eid, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	e := &event.SubscriptionUpdate{
		Seq:     m.Seq,
		ID:      eid,
		AssetID: asset.ID(m.AssetID),
		Reason:  event.Reason(m.Reason),
		At:      m.At.UTC(),
	}
	if m.NewExpiration != nil {
		e.NewExpiration = m.NewExpiration.UTC()
	}
	return e, nil
}
