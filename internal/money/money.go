// Package money converts between decimal amounts at the API boundary and the
// int64 minor units used by every ledger computation.
package money

import (
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var hundred = decimal.NewFromInt(100)

// ToCents converts a decimal amount to minor units, rounding half away from
// zero.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units back to a two-place decimal.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// Round2 rounds to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ParseAmount parses a user supplied amount such as "12.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// ConvertCents multiplies a minor-unit amount by rate and rounds back to
// minor units.
func ConvertCents(c int64, rate decimal.Decimal) int64 {
	return ToCents(Round2(FromCents(c).Mul(rate)))
}

// NormalizeCurrency upper-cases code and checks it is a known ISO 4217 code.
// An empty code returns fallback.
func NormalizeCurrency(code, fallback string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fallback, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("unknown currency %q: %w", code, err)
	}
	return unit.String(), nil
}

// Symbol returns the display symbol for an ISO code, or "" when unknown.
func Symbol(code string) string {
	if cur := gomoney.GetCurrency(code); cur != nil {
		return cur.Grapheme
	}
	return ""
}

// Format renders minor units for humans, e.g. "$1,234.50". Currencies whose
// ISO fraction is not two digits fall back to a plain decimal with the code,
// since ledger minor units are always hundredths.
func Format(cents int64, code string) string {
	cur := gomoney.GetCurrency(code)
	if cur == nil || cur.Fraction != 2 {
		return FromCents(cents).StringFixed(2) + " " + code
	}
	return gomoney.New(cents, code).Display()
}
