package teamcart

import (
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// toMinor converts a major-unit amount to integer minor units, rounding half
// away from zero at the currency exponent.
func toMinor(amount decimal.Decimal, currency enums.Currency) int64 {
	return amount.Shift(currency.Exponent()).Round(0).IntPart()
}

func fromMinor(minor int64, currency enums.Currency) decimal.Decimal {
	return decimal.New(minor, -currency.Exponent())
}

// quantize rounds to the currency's minor unit.
func quantize(amount decimal.Decimal, currency enums.Currency) decimal.Decimal {
	return amount.Round(currency.Exponent())
}

// fitsMinorUnits reports whether amount needs no rounding in currency.
func fitsMinorUnits(amount decimal.Decimal, currency enums.Currency) bool {
	return amount.Equal(quantize(amount, currency))
}

// FormatAmount renders a fixed-precision string such as "10.03" or "25000".
func FormatAmount(amount decimal.Decimal, currency enums.Currency) string {
	return amount.StringFixed(currency.Exponent())
}
