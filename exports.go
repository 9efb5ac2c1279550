package tenure

import (
	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/types"
)

// Re-export common types so callers don't have to import sub-packages.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// AssetID is re-exported from asset package.
type AssetID = asset.ID

// Re-export Money constructors
var (
	NewMoney = types.New
	Zero     = types.Zero
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
