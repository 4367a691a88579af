package gateway

import "github.com/shopspring/decimal"

// AmountFromCents converts minor units to the decimal major-unit amount the gateway expects.
func AmountFromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// CentsFromAmount rounds a major-unit amount to whole minor units.
func CentsFromAmount(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
