package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// RoundMoney rounds an amount to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatMoney renders an amount with two decimals, e.g. "1200.50".
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// SumMoney adds up amounts exactly.
func SumMoney(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amt := range amounts {
		total = total.Add(amt)
	}
	return total
}
