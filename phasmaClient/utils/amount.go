package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToRaw converts a human amount into smallest token units, rounding half away
// from zero to the token's precision.
func ToRaw(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative: %s", amount)
	}
	raw := amount.Shift(int32(decimals)).Round(0).BigInt()
	if !raw.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows %d-decimal token units", amount, decimals)
	}
	return raw.Uint64(), nil
}

// FromRaw converts smallest token units into a human amount without any
// floating point step.
func FromRaw(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}

// SumRaw adds raw amounts, failing on overflow.
func SumRaw(amounts ...uint64) (uint64, error) {
	var total uint64
	for _, a := range amounts {
		next := total + a
		if next < total {
			return 0, fmt.Errorf("raw amount sum overflows")
		}
		total = next
	}
	return total, nil
}

// ShortAddress renders an address as "abcd1234...wxyz" for descriptions.
func ShortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:8] + "..." + address[len(address)-4:]
}
