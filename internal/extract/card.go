package extract

import (
	"regexp"
	"strings"
)

var cardPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[*xX•]{4,}\s?(\d{4})\b`),
	regexp.MustCompile(`(?i)terminad[ao]\s+en\s+(\d{4})\b`),
	regexp.MustCompile(`(?i)finalizad[ao]\s+en\s+(\d{4})\b`),
	regexp.MustCompile(`(?i)ending\s+in\s+(\d{4})\b`),
}

// CardLast4 returns the 4-digit card or account suffix, or "".
func CardLast4(text string) string {
	return FirstMatch(text, cardPatterns...)
}

// FirstMatch returns the first non-empty capture group of the first pattern that matches.
func FirstMatch(text string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		for i := 1; i < len(m); i++ {
			if v := strings.TrimSpace(m[i]); v != "" {
				return v
			}
		}
	}
	return ""
}

// Reference returns a provider confirmation code using the provider's patterns.
func Reference(text string, patterns ...*regexp.Regexp) string {
	return FirstMatch(text, patterns...)
}
