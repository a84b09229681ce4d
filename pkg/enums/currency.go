package enums

import (
	"fmt"
	"strings"
)

// Currency represents supported monetary denominations for cart totals.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyVND Currency = "VND"
	CurrencyJPY Currency = "JPY"
	CurrencyKRW Currency = "KRW"
)

// minorUnitExponents maps each currency to its ISO 4217 decimal places.
var minorUnitExponents = map[Currency]int32{
	CurrencyUSD: 2,
	CurrencyEUR: 2,
	CurrencyGBP: 2,
	CurrencyVND: 0,
	CurrencyJPY: 0,
	CurrencyKRW: 0,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	_, ok := minorUnitExponents[c]
	return ok
}

// Exponent returns the number of minor-unit decimal places.
func (c Currency) Exponent() int32 {
	return minorUnitExponents[c]
}

// ParseCurrency converts a raw string into a Currency. Matching is case-insensitive.
func ParseCurrency(value string) (Currency, error) {
	candidate := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if candidate.IsValid() {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
