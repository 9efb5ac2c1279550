package store

import (
	"context"
	"errors"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/event"
	"github.com/xraph/tenure/payment"
	"github.com/xraph/tenure/replay"
	"github.com/xraph/tenure/subscription"
)

// Store errors.
var (
	ErrAlreadyExists     = errors.New("tenure: already exists")
	ErrStoreClosed       = errors.New("tenure: store is closed")
	ErrTransactionFailed = errors.New("tenure: transaction failed")
	ErrMigrationFailed   = errors.New("tenure: migration failed")
)

// Store is the unified storage interface for all Tenure records.
//
// Every method accepts a context that may carry a transaction opened by
// InTx; calls made with such a context join it. Calls made outside InTx run
// in their own implicit transaction.
type Store interface {
	// Asset registry: InTx, the ID counter, assets, operators, pause flag.
	asset.Store

	// Subscription records.
	subscription.Store

	// Consumed signatures.
	replay.Store

	// Receipts and balances.
	payment.Store

	// Subscription update outbox.
	event.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
