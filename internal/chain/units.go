package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the precision of the chain's gas token.
const NativeDecimals = 18

// ParseUnits converts a human amount ("0.001") into base units.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: bad amount %q", ErrValidation, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %q", ErrValidation, s)
	}
	return d.Shift(decimals).BigInt(), nil
}

// FormatUnits renders base units as a decimal string.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// ApplyMargin scales a gas estimate by margin, rounding down.
func ApplyMargin(gas uint64, margin decimal.Decimal) uint64 {
	return decimal.NewFromInt(int64(gas)).Mul(margin).BigInt().Uint64()
}

// Scale multiplies a base-unit amount by factor, rounding down.
func Scale(v *big.Int, factor decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(v, 0).Mul(factor).BigInt()
}

// Percent returns floor(v * pct / 100).
func Percent(v *big.Int, pct int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(pct))
	return out.Div(out, big.NewInt(100))
}
