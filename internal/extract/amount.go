package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const number = `(\d[\d,]*(?:\.\d{1,2})?)`

// amountPatterns run from most to least specific.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)monto\s*:?\s*(?:USD|US\$)\s*` + number),
	regexp.MustCompile(`(?i)\b(?:USD|US\$)\s*` + number),
	regexp.MustCompile(`\$\s*` + number),
	regexp.MustCompile(`(?i)B/\.\s*` + number),
	regexp.MustCompile(`(?i)monto\s*:?\s*` + number),
	regexp.MustCompile(`\b(\d{1,3}(?:,\d{3})*\.\d{2})\b`),
}

// Amount returns the first positive amount found by the default pattern list.
func Amount(text string) (decimal.Decimal, bool) {
	return AmountMatching(text, amountPatterns...)
}

// AmountMatching tries each pattern in order and returns the first positive
// amount captured by group 1.
func AmountMatching(text string, patterns ...*regexp.Regexp) (decimal.Decimal, bool) {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}
			if amount, ok := ParseAmount(m[1]); ok {
				return amount, true
			}
		}
	}
	return decimal.Zero, false
}

// ParseAmount parses a number with optional comma grouping. Only positive values are accepted.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(s)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}
