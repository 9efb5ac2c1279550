// Package types provides value types shared across Tenure.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// DefaultCurrency is the base unit payments are denominated in when no
// currency is configured.
const DefaultCurrency = "wei"

// Money is an amount in the smallest unit of a currency.
// All arithmetic is integer-only; division truncates toward zero.
//
// Examples:
//   - New(1000, "wei") = 1000 wei
//   - New(4900, "usd") = 4900 cents
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit
	Currency string `json:"currency"` // Lowercase code: "wei", "usd", ...
}

// New creates a Money value. The currency code is lowercased.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money { return New(0, currency) }

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Multiply multiplies the amount by qty. Panics on int64 overflow; use
// MultiplyChecked where qty comes from user input.
func (m Money) Multiply(qty int64) Money {
	out, ok := m.MultiplyChecked(qty)
	if !ok {
		panic(fmt.Sprintf("money: overflow multiplying %d by %d", m.Amount, qty))
	}
	return out
}

// MultiplyChecked multiplies the amount by qty and reports false if the
// result does not fit in an int64.
func (m Money) MultiplyChecked(qty int64) (Money, bool) {
	if m.Amount == 0 || qty == 0 {
		return Money{Amount: 0, Currency: m.Currency}, true
	}
	product := m.Amount * qty
	if product/qty != m.Amount || (m.Amount == -1 && qty == math.MinInt64) || (qty == -1 && m.Amount == math.MinInt64) {
		return Money{}, false
	}
	return Money{Amount: product, Currency: m.Currency}, true
}

// Divide divides the amount by divisor, truncating. Panics on zero.
func (m Money) Divide(divisor int64) Money {
	if divisor == 0 {
		panic("money: division by zero")
	}
	return Money{Amount: m.Amount / divisor, Currency: m.Currency}
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// String returns "<amount> <currency>", e.g. "1000 wei".
func (m Money) String() string {
	if m.Currency == "" {
		return fmt.Sprintf("%d", m.Amount)
	}
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

// UnmarshalJSON implements json.Unmarshaler and normalises the currency code.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = New(raw.Amount, raw.Currency)
	return nil
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}
