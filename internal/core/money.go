// Package core provides the ledger value types, entities and error kinds.
//
// This file contains the fixed-point Money type. Every monetary field in the
// ledger is a Money with scale 2 (cents); binary floating point is never used
// for stored amounts.
package core

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

const (
	// MoneyScale is the number of decimal places kept by Money.
	MoneyScale = 2
	// MaxIntegerDigits bounds the integer part of any stored amount.
	MaxIntegerDigits = 17
)

var maxIntegerPart = decimal.New(1, MaxIntegerDigits)

// Money is an exact decimal amount with two decimal places.
// The zero value is 0.00.
type Money struct {
	value decimal.Decimal
}

// ZeroMoney returns 0.00.
func ZeroMoney() Money { return Money{} }

// MoneyFromCents builds a Money from an integer number of cents.
func MoneyFromCents(cents int64) Money {
	return Money{value: decimal.New(cents, -MoneyScale)}
}

// MoneyFromDecimal rounds d half away from zero to two decimal places.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{value: d.Round(MoneyScale)}
}

// ParseMoney converts a decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up on the third decimal place. Signs and exponents are rejected; the
// result is never negative.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("12,345") -> 12.35
//	ParseMoney("-1")     -> error
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return Money{}, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m := MoneyFromDecimal(d)
	if err := m.checkDigits(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// MustParseMoney is like ParseMoney but panics on error. Intended for
// constants and tests.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(fmt.Sprintf("core: MustParseMoney(%q): %v", s, err))
	}
	return m
}

func (m Money) Add(n Money) Money { return Money{value: m.value.Add(n.value)} }
func (m Money) Sub(n Money) Money { return Money{value: m.value.Sub(n.value)} }
func (m Money) Neg() Money        { return Money{value: m.value.Neg()} }

// Cmp returns -1, 0 or +1 as m is less than, equal to or greater than n.
func (m Money) Cmp(n Money) int                 { return m.value.Cmp(n.value) }
func (m Money) Equal(n Money) bool              { return m.value.Equal(n.value) }
func (m Money) LessThan(n Money) bool           { return m.value.LessThan(n.value) }
func (m Money) GreaterThan(n Money) bool        { return m.value.GreaterThan(n.value) }
func (m Money) GreaterThanOrEqual(n Money) bool { return m.value.GreaterThanOrEqual(n.value) }
func (m Money) IsZero() bool                    { return m.value.IsZero() }
func (m Money) IsPositive() bool                { return m.value.IsPositive() }
func (m Money) IsNegative() bool                { return m.value.IsNegative() }

// Min clamps m to at most max.
func (m Money) Min(max Money) Money {
	if m.GreaterThan(max) {
		return max
	}
	return m
}

// Decimal exposes the underlying exact value.
func (m Money) Decimal() decimal.Decimal { return m.value }

// Cents returns the amount in cents. The second result is false when the
// value does not fit in an int64.
func (m Money) Cents() (int64, bool) {
	c := m.value.Shift(MoneyScale)
	if !c.IsInteger() || c.Abs().GreaterThan(decimal.NewFromInt(1<<63-1)) {
		return 0, false
	}
	return c.IntPart(), true
}

// String formats the amount with exactly two decimals, e.g. "-12.30".
func (m Money) String() string { return m.value.StringFixed(MoneyScale) }

// Validate checks the scale and the integer-digit bound. Sign is the
// caller's concern.
func (m Money) Validate() error {
	if !m.value.Equal(m.value.Round(MoneyScale)) {
		return ErrAmountScale
	}
	return m.checkDigits()
}

// ValidatePositive is Validate plus a strict positivity check, used for
// transaction amounts and goal targets.
func (m Money) ValidatePositive() error {
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	return m.Validate()
}

func (m Money) checkDigits() error {
	if m.value.Abs().GreaterThanOrEqual(maxIntegerPart) {
		return ErrAmountTooLarge
	}
	return nil
}

// Value implements driver.Valuer. Amounts are persisted as TEXT since 17
// integer digits plus cents do not fit in an int64.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner.
func (m *Money) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("scan money: %w", err)
	}
	*m = MoneyFromDecimal(d)
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("unmarshal money: %w", err)
	}
	*m = MoneyFromDecimal(d)
	return nil
}
