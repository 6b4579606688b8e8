package domain

import (
	"errors"
	"math"
	"math/big"
)

// BasisPointsScale is the denominator for percentage adjustments (100.00% == 10000 bps).
const BasisPointsScale int64 = 10000

// ErrAmountOverflow reports a monetary computation that does not fit in int64 minor units.
var ErrAmountOverflow = errors.New("money: amount overflow")

// PercentOf returns amount*bps/10000 rounded half-up to the nearest minor unit.
func PercentOf(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	if amount <= (math.MaxInt64-BasisPointsScale/2)/bps {
		return (amount*bps + BasisPointsScale/2) / BasisPointsScale
	}
	product := new(big.Int).Mul(big.NewInt(amount), big.NewInt(bps))
	product.Add(product, big.NewInt(BasisPointsScale/2))
	product.Quo(product, big.NewInt(BasisPointsScale))
	if !product.IsInt64() {
		return math.MaxInt64
	}
	return product.Int64()
}

// CheckedAdd adds two non-negative amounts, failing on overflow.
func CheckedAdd(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrAmountOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// CheckedMul multiplies a unit amount by a quantity, failing on overflow.
func CheckedMul(amount int64, quantity int64) (int64, error) {
	if amount == 0 || quantity == 0 {
		return 0, nil
	}
	if amount < 0 || quantity < 0 {
		return 0, ErrAmountOverflow
	}
	if amount > math.MaxInt64/quantity {
		return 0, ErrAmountOverflow
	}
	return amount * quantity, nil
}

// PercentToBasisPoints converts a percentage with up to two decimals (12.5 -> 1250),
// rounding half-up. ok is false when the value is outside [0,100] or not finite.
func PercentToBasisPoints(percent float64) (int64, bool) {
	if math.IsNaN(percent) || math.IsInf(percent, 0) || percent < 0 || percent > 100 {
		return 0, false
	}
	return int64(math.Floor(percent*100 + 0.5)), true
}

// BasisPointsToPercent renders basis points back to a percentage value.
func BasisPointsToPercent(bps int64) float64 {
	return float64(bps) / 100
}

// ClampAmount bounds value to [0, limit].
func ClampAmount(value, limit int64) int64 {
	if value < 0 {
		return 0
	}
	if limit < 0 {
		return 0
	}
	if value > limit {
		return limit
	}
	return value
}
