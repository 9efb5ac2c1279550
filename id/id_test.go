package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/tenure/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"EventID", id.NewEventID, "evt_"},
		{"ReceiptID", id.NewReceiptID, "rcpt_"},
		{"RedemptionID", id.NewRedemptionID, "rdm_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"EventID", id.NewEventID, id.ParseEventID},
		{"ReceiptID", id.NewReceiptID, id.ParseReceiptID},
		{"RedemptionID", id.NewRedemptionID, id.ParseRedemptionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseEventID(id.NewReceiptID().String()); err == nil {
		t.Error("ParseEventID accepted a receipt ID")
	}
	if _, err := id.ParseReceiptID(id.NewRedemptionID().String()); err == nil {
		t.Error("ParseReceiptID accepted a redemption ID")
	}
	if _, err := id.ParseRedemptionID(id.NewEventID().String()); err == nil {
		t.Error("ParseRedemptionID accepted an event ID")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" || i.Prefix() != "" {
		t.Errorf("expected empty string and prefix, got %q / %q", i.String(), i.Prefix())
	}
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewEventID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var fromNull id.ID
	if err := fromNull.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !fromNull.IsNil() {
		t.Error("expected nil after scan of NULL")
	}

	if err := fromNull.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewEventID()
	b := id.NewEventID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewEventID() calls returned the same ID: %q", a.String())
	}
}
