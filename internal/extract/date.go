package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	clock  = `(\d{1,2}):(\d{2})(?::(\d{2}))?`
	marker = `([ap]\.?\s?m\.?)(?:[^a-zA-Z]|$)`
)

var months = map[string]time.Month{
	"ene": time.January, "jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"abr": time.April, "apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"ago": time.August, "aug": time.August,
	"sep": time.September, "set": time.September,
	"oct": time.October,
	"nov": time.November,
	"dic": time.December, "dec": time.December,
}

// dateFormat pairs a pattern with the function that turns its submatches into a time.
type dateFormat struct {
	re    *regexp.Regexp
	build func(m []string, loc *time.Location) (time.Time, bool)
}

var dateFormats = []dateFormat{
	{
		// 2025/10/30-16:13:05
		re: regexp.MustCompile(`(\d{4})/(\d{2})/(\d{2})-(\d{2}):(\d{2}):(\d{2})`),
		build: func(m []string, loc *time.Location) (time.Time, bool) {
			return civil(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]), atoi(m[4]), atoi(m[5]), atoi(m[6]), loc)
		},
	},
	{
		// 30-oct-2025 a las 4:13 pm, 02 nov 2025 06:17 p. m.
		re: regexp.MustCompile(`(?i)\b(\d{1,2})[-\s/]([a-z]{3})[a-z]*\.?[-\s/](\d{4})(?:,?\s+(?:a\s+las\s+)?` + clock + `(?:\s*` + marker + `)?)?`),
		build: func(m []string, loc *time.Location) (time.Time, bool) {
			month, ok := months[strings.ToLower(m[2])]
			if !ok {
				return time.Time{}, false
			}
			hour, minute, sec := clockParts(m[4], m[5], m[6], m[7])
			return civil(atoi(m[3]), month, atoi(m[1]), hour, minute, sec, loc)
		},
	},
	{
		// 2025-10-06, 2025-10-06T19:47:26
		re: regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})(?:[T\s](\d{2}):(\d{2})(?::(\d{2}))?)?`),
		build: func(m []string, loc *time.Location) (time.Time, bool) {
			hour, minute, sec := clockParts(m[4], m[5], m[6], "")
			return civil(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]), hour, minute, sec, loc)
		},
	},
	{
		// 06-10-2025 Hora: 7:47:26 p.m. (day first)
		re: regexp.MustCompile(`(?i)\b(\d{1,2})-(\d{1,2})-(\d{4})(?:\s+(?:hora\s*:?\s*)?` + clock + `(?:\s*` + marker + `)?)?`),
		build: func(m []string, loc *time.Location) (time.Time, bool) {
			hour, minute, sec := clockParts(m[4], m[5], m[6], m[7])
			return civil(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1]), hour, minute, sec, loc)
		},
	},
	{
		// 2025/10/30
		re: regexp.MustCompile(`\b(\d{4})/(\d{1,2})/(\d{1,2})\b`),
		build: func(m []string, loc *time.Location) (time.Time, bool) {
			return civil(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]), 0, 0, 0, loc)
		},
	},
	{
		// 10/30/2025 4:13 PM (month first)
		re: regexp.MustCompile(`(?i)\b(\d{1,2})/(\d{1,2})/(\d{4})(?:\s+` + clock + `(?:\s*` + marker + `)?)?`),
		build: func(m []string, loc *time.Location) (time.Time, bool) {
			hour, minute, sec := clockParts(m[4], m[5], m[6], m[7])
			return civil(atoi(m[3]), time.Month(atoi(m[1])), atoi(m[2]), hour, minute, sec, loc)
		},
	},
	{
		// October 30, 2025
		re: regexp.MustCompile(`(?i)\b([a-z]{3})[a-z]*\.?\s+(\d{1,2}),?\s+(\d{4})\b`),
		build: func(m []string, loc *time.Location) (time.Time, bool) {
			month, ok := months[strings.ToLower(m[1])]
			if !ok {
				return time.Time{}, false
			}
			return civil(atoi(m[3]), month, atoi(m[2]), 0, 0, 0, loc)
		},
	},
}

// DateTime finds the earliest date (and time, when present) in text. Wall-clock
// values are interpreted in loc.
func DateTime(text string, loc *time.Location) (time.Time, bool) {
	var (
		best    time.Time
		bestPos = -1
	)
	for _, f := range dateFormats {
		for _, idx := range f.re.FindAllStringSubmatchIndex(text, -1) {
			if bestPos >= 0 && idx[0] >= bestPos {
				break
			}
			m := submatches(text, idx)
			t, ok := f.build(m, loc)
			if !ok {
				continue
			}
			best, bestPos = t, idx[0]
			break
		}
	}
	return best, bestPos >= 0
}

// DateTimeAfter looks for a date only in the text following the first match of label.
func DateTimeAfter(text string, label *regexp.Regexp, loc *time.Location) (time.Time, bool) {
	span := label.FindStringIndex(text)
	if span == nil {
		return time.Time{}, false
	}
	return DateTime(text[span[1]:], loc)
}

// To24Hour converts a 12-hour clock value using an AM/PM marker such as
// "p.m.", "a. m." or "PM". An empty or unknown marker leaves the hour unchanged.
func To24Hour(hour int, marker string) int {
	m := strings.ToLower(marker)
	m = strings.NewReplacer(".", "", " ", "").Replace(m)
	switch {
	case m == "pm" && hour != 12:
		return hour + 12
	case m == "am" && hour == 12:
		return 0
	default:
		return hour
	}
}

func clockParts(h, m, s, mark string) (int, int, int) {
	if h == "" {
		return 0, 0, 0
	}
	return To24Hour(atoi(h), mark), atoi(m), atoi(s)
}

func civil(year int, month time.Month, day, hour, minute, sec int, loc *time.Location) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, hour, minute, sec, 0, loc)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func submatches(text string, idx []int) []string {
	m := make([]string, len(idx)/2)
	for i := range m {
		if idx[2*i] >= 0 {
			m[i] = text[idx[2*i]:idx[2*i+1]]
		}
	}
	return m
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
