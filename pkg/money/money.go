package money

import "github.com/shopspring/decimal"

// Amounts travel through the API as float64 rupee values. All arithmetic
// that feeds an equality decision goes through decimal so the allocator's
// exact-match rule never depends on float error accumulation.

// Round normalises an amount to 2 decimal places.
func Round(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Equal reports whether two amounts are the same after rounding.
func Equal(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(2).Equal(decimal.NewFromFloat(b).Round(2))
}

// IsZero reports whether the amount rounds to zero.
func IsZero(v float64) bool {
	return decimal.NewFromFloat(v).Round(2).IsZero()
}

// GTE reports a >= b after rounding.
func GTE(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(2).GreaterThanOrEqual(decimal.NewFromFloat(b).Round(2))
}

// Sub returns a-b rounded to 2 decimal places.
func Sub(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}

// Add returns a+b rounded to 2 decimal places.
func Add(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}

// Sum totals a series of amounts.
func Sum(vs ...float64) float64 {
	total := decimal.Zero
	for _, v := range vs {
		total = total.Add(decimal.NewFromFloat(v))
	}
	f, _ := total.Round(2).Float64()
	return f
}

// MinorUnits converts a rupee amount to paise for gateway orders.
func MinorUnits(v float64) int64 {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
