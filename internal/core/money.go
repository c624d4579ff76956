// Package core provides money handling for ledger amounts.
//
// Amounts travel from the backend as JSON numbers. They are held as
// decimal values so that page and grand totals add up exactly.
package core

import (
	"github.com/shopspring/decimal"
)

// Money is a non-negative currency amount.
type Money struct {
	decimal.Decimal
}

// Zero is the zero amount.
func Zero() Money {
	return Money{Decimal: decimal.Zero}
}

// NewMoney builds an amount from a float, as reported by the backend.
func NewMoney(v float64) Money {
	return Money{Decimal: decimal.NewFromFloat(v)}
}

// ParseMoney parses a decimal string such as "12.34".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	m := Money{Decimal: d}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

func (m Money) Validate() error {
	if m.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// Add returns m+o.
func (m Money) Add(o Money) Money {
	return Money{Decimal: m.Decimal.Add(o.Decimal)}
}

// Equal compares amounts by value, ignoring representation.
func (m Money) Equal(o Money) bool {
	return m.Decimal.Equal(o.Decimal)
}

// Format renders the amount with two decimals, e.g. "$12.30".
func (m Money) Format() string {
	return "$" + m.StringFixed(2)
}

// UnmarshalJSON accepts numbers, numeric strings and null (zero).
func (m *Money) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		m.Decimal = decimal.Zero
		return nil
	}
	return m.Decimal.UnmarshalJSON(b)
}
