package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestExponent(t *testing.T) {
	assert.Equal(t, int32(2), Exponent("USD"))
	assert.Equal(t, int32(0), Exponent("JPY"))
	assert.Equal(t, int32(3), Exponent("KWD"))
	assert.Equal(t, int32(2), Exponent("usd"))
	// Unknown codes fall back to two decimals.
	assert.Equal(t, int32(2), Exponent("XXX"))
}

func TestRound_BankersRounding(t *testing.T) {
	tests := []struct {
		amount string
		code   string
		want   string
	}{
		{"1.005", "USD", "1.00"},  // half rounds to even
		{"1.015", "USD", "1.02"},
		{"1.0049", "USD", "1.00"},
		{"499.5", "JPY", "500"},
		{"1.0005", "KWD", "1.000"},
	}

	for _, tt := range tests {
		got := Round(decimal.RequireFromString(tt.amount), tt.code)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%s %s -> %s, want %s", tt.amount, tt.code, got, tt.want)
	}
}
