package math

import (
	"math/big"
	"sync"
)

// Precision is the fixed-point scale for all ratio arithmetic.
// Ratios are stored as parts-per-1e18: a ratio of 1.0 equals Precision.
const Precision int64 = 1_000_000_000_000_000_000

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs truncating division of numerator by denominator.
// All reward math floors: rounding loss accrues to the burn side, never
// toward overpay.
func DivideInt128(numerator *big.Int, denominator int64) int64 {
	quotient := getInt128()
	quotient.Quo(numerator, big.NewInt(denominator))

	result := quotient.Int64()
	putInt128(quotient)

	return result
}

// MulDiv computes floor(a * b / denom) with an int128 intermediate.
func MulDiv(a, b, denom int64) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, denom)
	putInt128(num)
	return result
}

// Ratio computes part's share of total as a fixed-point ratio:
// floor(part * Precision / total).
func Ratio(part, total int64) int64 {
	return MulDiv(part, Precision, total)
}

// ApplyRatio scales amount by a fixed-point ratio: floor(amount * ratio / Precision).
func ApplyRatio(amount, ratio int64) int64 {
	return MulDiv(amount, ratio, Precision)
}

// WeightedRatio computes floor(part * Precision * multiplier / total).
// The triple product exceeds int64 for any realistic vote count, so the
// whole computation stays in int128.
func WeightedRatio(part, multiplier, total int64) int64 {
	num := MultiplyInt128(part, Precision)
	num.Mul(num, big.NewInt(multiplier))
	result := DivideInt128(num, total)
	putInt128(num)
	return result
}

// Min returns the smaller of a and b.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
