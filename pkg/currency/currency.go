// Package currency resolves ISO 4217 minor-unit precision for monetary rounding.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnits maps currency codes to their ISO 4217 exponent. Codes not
// listed here fall back to two decimal places.
var minorUnits = map[string]int32{
	"BHD": 3,
	"CLP": 0,
	"COP": 2,
	"CRC": 2,
	"EUR": 2,
	"GTQ": 2,
	"HNL": 2,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"MXN": 2,
	"NIO": 2,
	"PYG": 0,
	"USD": 2,
	"VND": 0,
}

const defaultExponent int32 = 2

// Exponent returns the number of minor-unit digits for a currency code.
func Exponent(code string) int32 {
	if exp, ok := minorUnits[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return exp
	}
	return defaultExponent
}

// Round rounds an amount to the currency's minor unit using banker's rounding.
// It is the single final rounding step; intermediate math keeps full precision.
func Round(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.RoundBank(Exponent(code))
}
