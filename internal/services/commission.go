package services

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CalculateCommission returns round_half_up(amount * rate / 100) in minor
// units. Pure, no I/O. The caller records the result on exactly one credit
// movement per sale.
func CalculateCommission(amountMinor int64, ratePct int) (int64, error) {
	if amountMinor <= 0 {
		return 0, ErrInvalidAmount
	}
	if ratePct < 1 || ratePct > 100 {
		return 0, ErrInvalidRate
	}

	amount := decimal.NewFromInt(amountMinor)
	rate := decimal.NewFromInt(int64(ratePct))
	// decimal.Round is half away from zero, which is half-up for positive amounts.
	commission := amount.Mul(rate).Div(decimal.NewFromInt(100)).Round(0)
	return commission.IntPart(), nil
}

// ParseAmount converts a decimal money string ("125.50") to minor units.
// More than two fractional digits, zero, and negatives are rejected before
// any write happens.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal amount", ErrInvalidAmount, s)
	}
	if d.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %q has sub-cent precision", ErrInvalidAmount, s)
	}
	return minor.IntPart(), nil
}

// FormatAmount renders minor units back to a two-decimal string for API
// responses and remittance documents.
func FormatAmount(minor int64) string {
	return decimal.NewFromInt(minor).Shift(-2).StringFixed(2)
}
