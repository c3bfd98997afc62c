package common

import "regexp"

// MustCompileAll compiles every pattern case-insensitively, panicking on invalid input.
// It is meant for package-level pattern tables.
func MustCompileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}
	return out
}

// MatchAny reports whether any of the expressions matches text.
func MatchAny(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
