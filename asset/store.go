package asset

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists registry state.
type Store interface {
	// InTx runs fn in a transaction carried by the returned context. Every
	// store call made with that context joins the transaction; a nested InTx
	// joins the outer one.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	NextAssetID(ctx context.Context) (ID, error)
	InsertAsset(ctx context.Context, a *Asset) error
	GetAsset(ctx context.Context, id ID) (*Asset, error)
	UpdateAsset(ctx context.Context, a *Asset) error
	DeleteAsset(ctx context.Context, id ID) error
	ListAssetsByOwner(ctx context.Context, owner common.Address) ([]ID, error)

	SetOperator(ctx context.Context, owner, operator common.Address, approved bool) error
	IsOperator(ctx context.Context, owner, operator common.Address) (bool, error)

	GetPaused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
}
