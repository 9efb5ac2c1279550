package sqlite

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

	Name  string `grove:"name,pk"`
	Value int64  `grove:"value"`
}

type assetModel struct {
	grove.BaseModel `grove:"table:tenure_assets"`

	ID          int64  `grove:"id,pk"`
	Owner       string `grove:"owner"`
	Approved    string `grove:"approved"`
	MetadataRef string `grove:"metadata_ref"`
	CreatedAt   int64  `grove:"created_at"`
	UpdatedAt   int64  `grove:"updated_at"`
}

func toAssetModel(a *asset.Asset) *assetModel {
	return &assetModel{
		ID:          int64(a.ID),
		Owner:       a.Owner.Hex(),
		Approved:    addressText(a.Approved),
		MetadataRef: a.MetadataRef,
		CreatedAt:   toMicros(a.CreatedAt),
		UpdatedAt:   toMicros(a.UpdatedAt),
	}
}

func fromAssetModel(m *assetModel) *asset.Asset {
	return &asset.Asset{
		Entity:      types.Entity{CreatedAt: fromMicros(m.CreatedAt), UpdatedAt: fromMicros(m.UpdatedAt)},
		ID:          asset.ID(m.ID),
		Owner:       common.HexToAddress(m.Owner),
		Approved:    addressOrZero(m.Approved),
		MetadataRef: m.MetadataRef,
	}
}

type operatorModel struct {
	grove.BaseModel `grove:"table:tenure_operators"`

	Owner    string `grove:"owner,pk"`
	Operator string `grove:"operator,pk"`
}

type settingModel struct {
	grove.BaseModel `grove:"table:tenure_settings"`

	Key   string `grove:"key,pk"`
	Value string `grove:"value"`
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:tenure_subscriptions"`

	AssetID        int64  `grove:"asset_id,pk"`
	ExpiresAt      int64  `grove:"expires_at"`
	RenewableUntil int64  `grove:"renewable_until"`
	UnitPrice      int64  `grove:"unit_price"`
	Currency       string `grove:"currency"`
	CreatedAt      int64  `grove:"created_at"`
	UpdatedAt      int64  `grove:"updated_at"`
}

func toSubscriptionModel(r *subscription.Record) *subscriptionModel {
	return &subscriptionModel{
		AssetID:        int64(r.AssetID),
		ExpiresAt:      toMicros(r.ExpiresAt),
		RenewableUntil: toMicros(r.RenewableUntil),
		UnitPrice:      r.UnitPrice.Amount,
		Currency:       r.UnitPrice.Currency,
		CreatedAt:      toMicros(r.CreatedAt),
		UpdatedAt:      toMicros(r.UpdatedAt),
	}
}

func fromSubscriptionModel(m *subscriptionModel) *subscription.Record {
	return &subscription.Record{
		Entity:         types.Entity{CreatedAt: fromMicros(m.CreatedAt), UpdatedAt: fromMicros(m.UpdatedAt)},
		AssetID:        asset.ID(m.AssetID),
		ExpiresAt:      fromMicros(m.ExpiresAt),
		RenewableUntil: fromMicros(m.RenewableUntil),
		UnitPrice:      types.New(m.UnitPrice, m.Currency),
	}
}

// ==================== Replay models ====================

type redemptionModel struct {
	grove.BaseModel `grove:"table:tenure_redemptions"`

	Key        string `grove:"key,pk"`
	ID         string `grove:"id"`
	ConsumedAt int64  `grove:"consumed_at"`
}

func toRedemptionModel(r *replay.Redemption) *redemptionModel {
	return &redemptionModel{
		Key:        r.Key,
		ID:         r.ID.String(),
		ConsumedAt: toMicros(r.ConsumedAt),
	}
}

// ==================== Payment models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:tenure_balances"`

	Account  string `grove:"account,pk"`
	Currency string `grove:"currency,pk"`
	Amount   int64  `grove:"amount"`
}

type receiptModel struct {
	grove.BaseModel `grove:"table:tenure_receipts"`

	Seq       int64  `grove:"seq,pk,autoincrement"`
	ID        string `grove:"id"`
	From      string `grove:"from_addr"`
	To        string `grove:"to_addr"`
	Amount    int64  `grove:"amount"`
	Currency  string `grove:"currency"`
	Reason    string `grove:"reason"`
	AssetID   int64  `grove:"asset_id"`
	CreatedAt int64  `grove:"created_at"`
}

func toReceiptModel(r *payment.Receipt) *receiptModel {
	return &receiptModel{
		ID:        r.ID.String(),
		From:      r.From.Hex(),
		To:        r.To.Hex(),
		Amount:    r.Amount.Amount,
		Currency:  r.Amount.Currency,
		Reason:    string(r.Reason),
		AssetID:   int64(r.AssetID),
		CreatedAt: toMicros(r.CreatedAt),
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
		CreatedAt: fromMicros(m.CreatedAt),
	}, nil
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:tenure_events"`

	Seq           int64  `grove:"seq,pk,autoincrement"`
	ID            string `grove:"id"`
	AssetID       int64  `grove:"asset_id"`
	NewExpiration *int64 `grove:"new_expiration"`
	Reason        string `grove:"reason"`
	At            int64  `grove:"at"`
}

func toEventModel(e *event.SubscriptionUpdate) *eventModel {
	m := &eventModel{
		ID:      e.ID.String(),
		AssetID: int64(e.AssetID),
		Reason:  string(e.Reason),
		At:      toMicros(e.At),
	}
	if !e.NewExpiration.IsZero() {
		n := toMicros(e.NewExpiration)
		m.NewExpiration = &n
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
		At:      fromMicros(m.At),
	}
	if m.NewExpiration != nil {
		e.NewExpiration = fromMicros(*m.NewExpiration)
	}
	return e, nil
}

// toMicros keeps the zero instant as 0 so it round-trips to time.Time{}.
func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.UnixMicro(n).UTC()
}

func addressOrZero(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func addressText(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}
