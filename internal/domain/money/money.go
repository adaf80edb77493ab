// Package money defines the integer amount used for every price in checkout.
package money

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Money is an amount in the smallest currency unit.
type Money int64

// Bounds of a Money value.
const (
	Zero Money = 0
	Max  Money = math.MaxInt64
)

// FromDecimal rounds d half-up to the smallest unit.
func FromDecimal(d decimal.Decimal) Money {
	return Money(d.Round(0).IntPart())
}

// Decimal returns m as a decimal for rate arithmetic.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m))
}

// IsNegative reports whether m is below zero.
func (m Money) IsNegative() bool {
	return m < 0
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a < b {
		return a
	}
	return b
}

func (m Money) String() string {
	return strconv.FormatInt(int64(m), 10)
}
