// Package core holds the domain model of the tracker: transactions,
// categories, the balance ledger entries, money handling and the date
// arithmetic behind recurring transactions.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// printer renders amounts with pt-BR separators ("1.234,56"). Kept
// package-level: message printers are safe for concurrent use.
var printer = message.NewPrinter(language.BrazilianPortuguese)

// ParseAmount converts user input to minor currency units. It strips
// every non-digit rune and reads the remaining digit run as an integer
// amount of cents: "12,34", "12.34" and "R$ 12,34" all parse to 1234.
// Empty or garbage input parses to 0; the caller decides whether a zero
// amount is acceptable.
func ParseAmount(s string) int64 {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if digits == "" {
		return 0
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		// Longer than int64: treat as garbage rather than failing.
		return 0
	}
	return v
}

// FormatAmount renders minor units as Brazilian Real currency text,
// e.g. 123456 -> "R$ 1.234,56". The integer/fraction split is done on
// the integer value so no float rounding is involved;
// ParseAmount(FormatAmount(v)) == v holds for every non-negative v.
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return printer.Sprintf("%sR$ %v,%02d", sign, number.Decimal(cents/100), cents%100)
}
