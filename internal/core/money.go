// Package core holds the bill model and the pure filter and aggregation
// functions behind the dashboard.
//
// This file contains helpers for parsing amounts as they appear in
// extracted documents and for formatting them back for display.
package core

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a human-written amount to a decimal.
//
// Currency symbols and ISO codes are dropped only at the edges; anything
// else around or inside the number is an error. A comma is treated as the
// decimal separator when no dot is present, otherwise as a thousands
// separator. Exponent forms are parsed as written.
//
// Examples:
//
//	ParseAmount("12.34")      -> 12.34
//	ParseAmount("₪ 1,234.50") -> 1234.5
//	ParseAmount("12,5 EUR")   -> 12.5
//	ParseAmount("1.5e3")      -> 1500
//	ParseAmount("abc1")       -> error
//	ParseAmount("12-03")      -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	body := stripCurrency(s)
	neg := false
	if rest, ok := strings.CutPrefix(body, "-"); ok {
		neg = true
		body = stripCurrency(rest)
	}
	if body == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if r := rune(body[0]); !unicode.IsDigit(r) && r != '.' && r != ',' {
		return decimal.Zero, ErrInvalidAmount
	}

	var d decimal.Decimal
	if strings.IndexFunc(body, notSeparatedDigit) < 0 {
		clean := body
		if strings.Contains(clean, ".") {
			clean = strings.ReplaceAll(clean, ",", "")
		} else {
			clean = strings.ReplaceAll(clean, ",", ".")
		}
		if strings.Count(clean, ".") > 1 {
			return decimal.Zero, ErrInvalidAmount
		}
		parsed, err := decimal.NewFromString(clean)
		if err != nil {
			return decimal.Zero, ErrInvalidAmount
		}
		d = parsed
	} else {
		if !strings.ContainsAny(body, "eE") {
			return decimal.Zero, ErrInvalidAmount
		}
		parsed, err := decimal.NewFromString(body)
		if err != nil {
			return decimal.Zero, ErrInvalidAmount
		}
		d = parsed
	}

	if neg {
		d = d.Neg()
	}
	return d, nil
}

func notSeparatedDigit(r rune) bool {
	return !unicode.IsDigit(r) && r != '.' && r != ','
}

// currencyCodes are the ISO codes accepted next to an amount.
var currencyCodes = map[string]bool{
	"ILS": true, "NIS": true, "USD": true, "EUR": true, "GBP": true,
	"RUB": true, "CHF": true, "JPY": true, "CAD": true, "AUD": true,
}

// stripCurrency trims spaces, currency symbols and a space-separated
// currency code from both ends of s.
func stripCurrency(s string) string {
	for {
		prev := s
		s = strings.TrimFunc(s, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.Is(unicode.Sc, r)
		})
		if i := strings.LastIndexFunc(s, unicode.IsSpace); i >= 0 && currencyCodes[strings.ToUpper(s[i+1:])] {
			s = s[:i]
		}
		if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 && currencyCodes[strings.ToUpper(s[:i])] {
			s = s[i+1:]
		}
		if s == prev {
			return s
		}
	}
}

var currencySymbols = map[string]string{
	"ILS": "₪",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// FormatAmount renders d with two decimals, prefixed by the currency
// symbol when known or suffixed by the code otherwise.
func FormatAmount(d decimal.Decimal, currency string) string {
	s := d.StringFixed(2)
	code := strings.ToUpper(strings.TrimSpace(currency))
	if sym, ok := currencySymbols[code]; ok {
		if d.IsNegative() {
			return "-" + sym + d.Abs().StringFixed(2)
		}
		return sym + s
	}
	if code == "" {
		return s
	}
	return s + " " + code
}
