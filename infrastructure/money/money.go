// Package money does currency arithmetic on decimals and rounds to cents, so
// float columns never accumulate binary drift across payments.
package money

import "github.com/shopspring/decimal"

// Places is the number of decimal places amounts are stored with.
const Places = 2

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func out(v decimal.Decimal) float64 {
	f, _ := v.Round(Places).Float64()
	return f
}

// Round rounds v to cents.
func Round(v float64) float64 {
	return out(d(v))
}

// Add returns the sum of values rounded to cents.
func Add(values ...float64) float64 {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(d(v))
	}
	return out(sum)
}

// Sub returns a - b rounded to cents.
func Sub(a, b float64) float64 {
	return out(d(a).Sub(d(b)))
}

// Mul returns v * qty rounded to cents.
func Mul(v float64, qty int64) float64 {
	return out(d(v).Mul(decimal.NewFromInt(qty)))
}

// Floor0 returns a - b, or 0 when the difference is negative.
func Floor0(a, b float64) float64 {
	diff := d(a).Sub(d(b))
	if diff.IsNegative() {
		return 0
	}
	return out(diff)
}

// Cmp compares a and b at cent precision: -1, 0 or +1.
func Cmp(a, b float64) int {
	return d(a).Round(Places).Cmp(d(b).Round(Places))
}

// IsNegative reports whether v is below zero at cent precision.
func IsNegative(v float64) bool {
	return Cmp(v, 0) < 0
}

// IsPositive reports whether v is above zero at cent precision.
func IsPositive(v float64) bool {
	return Cmp(v, 0) > 0
}
