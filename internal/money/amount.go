// Package money holds wager amounts as integer minor units (cents). Decimal values only
// appear at the edges: configuration, SQL NUMERIC columns and display strings.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a count of minor units.
type Amount int64

const scale = 2

// FromDecimal converts d to minor units, rounding half away from zero.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Shift(scale).Round(0).IntPart())
}

// Parse reads a decimal string such as "5" or "5.00".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// MustParse is Parse for literals.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal { return decimal.New(int64(a), -scale) }

// String renders the amount with two fraction digits, e.g. "9.00".
func (a Amount) String() string { return a.Decimal().StringFixed(scale) }

// MulRate returns a × rate rounded half away from zero to whole minor units.
func (a Amount) MulRate(rate decimal.Decimal) Amount {
	return Amount(decimal.NewFromInt(int64(a)).Mul(rate).Round(0).IntPart())
}

func (a Amount) Neg() Amount { return -a }
