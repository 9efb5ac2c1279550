// Package id defines TypeID-based identity types for Tenure records that are
// not asset identifiers: subscription update events, payment receipts and
// voucher redemptions.
//
// Asset identifiers are allocated by the asset registry as plain increasing
// integers (see package asset); everything else uses a single ID struct with
// a prefix naming the record type. IDs are K-sortable (UUIDv7-based), which
// gives event listings a natural time ordering.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record type encoded in a TypeID.
type Prefix string

// Prefix constants for all Tenure record types.
const (
	PrefixEvent      Prefix = "evt"  // Subscription update event
	PrefixReceipt    Prefix = "rcpt" // Payment receipt
	PrefixRedemption Prefix = "rdm"  // Voucher redemption
)

// ID is a prefix-qualified, globally unique, sortable identifier in the
// format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "evt_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and requires its prefix to equal expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// EventID identifies a persisted subscription update event (prefix: "evt").
type EventID = ID

// ReceiptID identifies a payment receipt (prefix: "rcpt").
type ReceiptID = ID

// RedemptionID identifies a consumed voucher signature (prefix: "rdm").
type RedemptionID = ID

// NewEventID generates a new event ID.
func NewEventID() ID { return New(PrefixEvent) }

// NewReceiptID generates a new receipt ID.
func NewReceiptID() ID { return New(PrefixReceipt) }

// NewRedemptionID generates a new redemption ID.
func NewRedemptionID() ID { return New(PrefixRedemption) }

// ParseEventID parses s and validates the "evt" prefix.
func ParseEventID(s string) (ID, error) { return ParseWithPrefix(s, PrefixEvent) }

// ParseReceiptID parses s and validates the "rcpt" prefix.
func ParseReceiptID(s string) (ID, error) { return ParseWithPrefix(s, PrefixReceipt) }

// ParseRedemptionID parses s and validates the "rdm" prefix.
func ParseRedemptionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRedemption) }

// String returns "prefix_suffix", or "" for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer. The Nil ID is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil

		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
