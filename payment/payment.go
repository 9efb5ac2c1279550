// Package payment moves funds from a payer to the authority account
// synchronously and keeps a receipt for every transfer.
//
// There is no escrow and no settlement: a payment either lands in the
// payee's balance inside the caller's transaction or the whole operation
// fails with ErrPayoutFailed.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/id"
	"github.com/xraph/tenure/types"
)

var ErrPayoutFailed = errors.New("tenure: payout rejected")

// Reason labels what a payment was for.
type Reason string

const (
	ReasonIssue   Reason = "issue"
	ReasonRenewal Reason = "renewal"
)

// Receipt records one completed transfer.
type Receipt struct {
	ID        id.ReceiptID   `json:"id"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Amount    types.Money    `json:"amount"`
	Reason    Reason         `json:"reason"`
	AssetID   asset.ID       `json:"asset_id"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store persists receipts and per-account balances.
type Store interface {
	InsertReceipt(ctx context.Context, r *Receipt) error
	Credit(ctx context.Context, account common.Address, amount types.Money) error
	Balance(ctx context.Context, account common.Address, currency string) (types.Money, error)
	ListReceipts(ctx context.Context, account common.Address, opts ListOpts) ([]*Receipt, error)
}

// ListOpts pages through receipts, oldest first.
type ListOpts struct {
	Limit  int
	Offset int
}

// Receiver is the payee's acceptance check. Returning an error rejects the
// transfer.
type Receiver interface {
	Receive(ctx context.Context, from common.Address, amount types.Money) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, from common.Address, amount types.Money) error

func (f ReceiverFunc) Receive(ctx context.Context, from common.Address, amount types.Money) error {
	return f(ctx, from, amount)
}

// AcceptAll is a Receiver that takes every payment.
var AcceptAll Receiver = ReceiverFunc(func(context.Context, common.Address, types.Money) error { return nil })

// Transfer describes one payment.
type Transfer struct {
	From    common.Address
	Amount  types.Money
	Reason  Reason
	AssetID asset.ID
	At      time.Time
}

// Processor pays a single payee through its Receiver.
type Processor struct {
	store    Store
	payee    common.Address
	receiver Receiver
}

// NewProcessor returns a processor paying payee. A nil receiver accepts
// everything.
func NewProcessor(s Store, payee common.Address, receiver Receiver) *Processor {
	if receiver == nil {
		receiver = AcceptAll
	}
	return &Processor{store: s, payee: payee, receiver: receiver}
}

// Payee returns the account every payment is sent to.
func (p *Processor) Payee() common.Address { return p.payee }

// Pay asks the receiver to accept t, then credits the payee and stores a
// receipt. Call it inside the transaction of the operation being paid for.
func (p *Processor) Pay(ctx context.Context, t Transfer) (*Receipt, error) {
	if t.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrPayoutFailed, t.Amount)
	}
	if err := p.receiver.Receive(ctx, t.From, t.Amount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayoutFailed, err)
	}

	if err := p.store.Credit(ctx, p.payee, t.Amount); err != nil {
		return nil, fmt.Errorf("tenure/payment: credit: %w", err)
	}

	r := &Receipt{
		ID:        id.NewReceiptID(),
		From:      t.From,
		To:        p.payee,
		Amount:    t.Amount,
		Reason:    t.Reason,
		AssetID:   t.AssetID,
		CreatedAt: t.At.UTC(),
	}
	if err := p.store.InsertReceipt(ctx, r); err != nil {
		return nil, fmt.Errorf("tenure/payment: receipt: %w", err)
	}
	return r, nil
}
