package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	secondsPerHour = decimal.NewFromInt(3600)
	hundred        = decimal.NewFromInt(100)
)

// Round2 rounds to exactly two decimal places, half away from zero.
// For the non-negative amounts invoices carry this is round-half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// HoursFromSeconds converts a duration to billable hours rounded to two places.
func HoursFromSeconds(secs int64) decimal.Decimal {
	return decimal.NewFromInt(secs).DivRound(secondsPerHour, 2)
}

// LineAmount returns round2(quantity * rate).
func LineAmount(quantity, rate decimal.Decimal) decimal.Decimal {
	return Round2(quantity.Mul(rate))
}

// ComputeTotals returns the tax amount and total for a subtotal at taxRate.
// The tax is rounded before it is added so the total reconciles with the
// printed tax line.
func ComputeTotals(subtotal, taxRate decimal.Decimal) (taxAmount, total decimal.Decimal) {
	taxAmount = Round2(subtotal.Mul(taxRate))
	total = Round2(subtotal.Add(taxAmount))
	return taxAmount, total
}

// ValidateTaxRate checks that rate is a fraction in [0, 1].
func ValidateTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: tax rate %s must be between 0 and 1", ErrValidation, rate)
	}
	return nil
}

// TaxPercent formats a fractional tax rate as a percentage, e.g. 0.08 -> "8".
func TaxPercent(rate decimal.Decimal) string {
	return rate.Mul(hundred).String()
}
