package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return New(100, "wei").Add(New(200, "wei")) }, New(300, "wei")},
		{"Multiply", func() Money { return New(33, "wei").Multiply(3) }, New(99, "wei")},
		{"Divide exact", func() Money { return New(1000, "wei").Divide(1000) }, New(1, "wei")},
		{"Divide truncates", func() Money { return New(100, "wei").Divide(3) }, New(33, "wei")},
		{"Divide below one", func() Money { return New(2, "wei").Divide(3) }, New(0, "wei")},
		{"Zero times anything", func() Money { return Zero("wei").Multiply(math.MaxInt64) }, Zero("wei")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyMultiplyChecked(t *testing.T) {
	if _, ok := New(math.MaxInt64/2+1, "wei").MultiplyChecked(2); ok {
		t.Error("expected overflow to be reported")
	}
	if _, ok := New(math.MinInt64, "wei").MultiplyChecked(-1); ok {
		t.Error("expected MinInt64 * -1 overflow to be reported")
	}
	got, ok := New(7, "wei").MultiplyChecked(6)
	if !ok || got.Amount != 42 {
		t.Errorf("got %v ok=%v, want 42", got, ok)
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = New(100, "wei").Add(New(100, "usd"))
}

func TestMoneyDivisionByZero(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for division by zero")
		}
	}()

	_ = New(100, "wei").Divide(0)
}

func TestMoneyEqualNormalisesCurrency(t *testing.T) {
	if !New(5, "WEI").Equal(New(5, "wei")) {
		t.Error("currency codes should be case-insensitive")
	}
	if New(5, "wei").Equal(New(5, "usd")) {
		t.Error("different currencies must not compare equal")
	}
}

func TestMoneyJSON(t *testing.T) {
	var m Money
	if err := json.Unmarshal([]byte(`{"amount":1000,"currency":"WEI"}`), &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !m.Equal(New(1000, "wei")) {
		t.Errorf("got %v", m)
	}
	if m.String() != "1000 wei" {
		t.Errorf("String: got %q", m.String())
	}
}
