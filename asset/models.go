// Package asset is the non-fungible asset registry: ownership, approvals,
// operators, metadata references, the global pause switch and the single
// administrative authority.
package asset

import (
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tenure/types"
)

var (
	ErrAssetNotFound = errors.New("tenure: asset not found")
	ErrNotAuthorized = errors.New("tenure: caller not authorized")
	ErrSystemPaused  = errors.New("tenure: system paused")
	ErrInvalidOwner  = errors.New("tenure: invalid owner")
)

// ID identifies an asset. IDs are allocated from a persistent counter that
// starts at 1; zero is never a valid asset.
type ID uint64

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseID parses the decimal form produced by String.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, ErrAssetNotFound
	}
	return ID(n), nil
}

// Asset is one issued, non-fungible record.
type Asset struct {
	types.Entity
	ID          ID             `json:"id"`
	Owner       common.Address `json:"owner"`
	Approved    common.Address `json:"approved"`
	MetadataRef string         `json:"metadata_ref"`
}

func isNotFound(err error) bool { return errors.Is(err, ErrAssetNotFound) }
