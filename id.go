package tenure

import "github.com/xraph/tenure/id"

// ID is the TypeID used for events, receipts and redemptions.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
