package api

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/subscription"
	"github.com/xraph/tenure/types"
	"github.com/xraph/tenure/voucher"
)

// VoucherBody is the JSON form of a voucher. Durations and the issuance time
// are whole seconds.
type VoucherBody struct {
	Recipient              string      `json:"recipient" validate:"required,eth_addr"`
	MetadataRef            string      `json:"metadata_ref" validate:"max=2048"`
	DurationSeconds        int64       `json:"duration_seconds" validate:"gte=0,lte=9223372036"`
	RenewableWindowSeconds int64       `json:"renewable_window_seconds" validate:"gte=0,lte=9223372036"`
	Price                  types.Money `json:"price"`
	IssuedAt               int64       `json:"issued_at" validate:"gte=0"`
}

func (b VoucherBody) voucher() voucher.Voucher {
	return voucher.Voucher{
		Recipient:       common.HexToAddress(b.Recipient),
		MetadataRef:     b.MetadataRef,
		Duration:        time.Duration(b.DurationSeconds) * time.Second,
		RenewableWindow: time.Duration(b.RenewableWindowSeconds) * time.Second,
		Price:           b.Price,
		IssuedAt:        time.Unix(b.IssuedAt, 0).UTC(),
	}
}

// RedeemRequest redeems a signed voucher.
type RedeemRequest struct {
	Voucher   VoucherBody `json:"voucher"`
	Signature string      `json:"signature" validate:"required,hexadecimal"`
	Payer     string      `json:"payer,omitempty" validate:"omitempty,eth_addr"`
	Payment   types.Money `json:"payment"`
}

// RenewRequest extends a subscription.
type RenewRequest struct {
	DurationSeconds int64       `json:"duration_seconds" validate:"gte=0,lte=9223372036"`
	Payment         types.Money `json:"payment"`
}

func decodeSignature(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}

// SubscriptionResponse describes an asset's subscription. Times are unix
// seconds; zero means none.
type SubscriptionResponse struct {
	AssetID        uint64      `json:"asset_id"`
	ExpiresAt      int64       `json:"expires_at"`
	RenewableUntil int64       `json:"renewable_until"`
	UnitPrice      types.Money `json:"unit_price"`
	Active         bool        `json:"active"`
	Renewable      bool        `json:"renewable"`
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func subscriptionResponse(r *subscription.Record, now time.Time) SubscriptionResponse {
	return SubscriptionResponse{
		AssetID:        uint64(r.AssetID),
		ExpiresAt:      unix(r.ExpiresAt),
		RenewableUntil: unix(r.RenewableUntil),
		UnitPrice:      r.UnitPrice,
		Active:         r.Active(now),
		Renewable:      r.Renewable(now),
	}
}

// EventResponse is one subscription update.
type EventResponse struct {
	Seq           int64  `json:"seq"`
	ID            string `json:"id"`
	AssetID       uint64 `json:"asset_id"`
	NewExpiration int64  `json:"new_expiration"`
	Reason        string `json:"reason"`
	At            int64  `json:"at"`
}

func eventResponses(events []*event.SubscriptionUpdate) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, EventResponse{
			Seq:           e.Seq,
			ID:            e.ID.String(),
			AssetID:       uint64(e.AssetID),
			NewExpiration: unix(e.NewExpiration),
			Reason:        string(e.Reason),
			At:            e.At.Unix(),
		})
	}
	return out
}
