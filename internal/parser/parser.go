// Package parser turns provider notification emails into transactions.
//
// Each provider implements Parser; a Registry holds them in a fixed precedence
// order and falls back to a generic Fallback when no provider claims an email.
package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/dedup"
	"github.com/Veraticus/the-spice-must-ingest/internal/extract"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

// Metadata is delivery information about the email being parsed.
type Metadata struct {
	ReceivedAt time.Time
	MessageID  string
	Sender     string
	Subject    string
}

// Parser extracts transactions from one provider's emails.
type Parser interface {
	// ID is the stable provider identifier stored with emails and transactions.
	ID() string
	// Matches reports whether the sender or the subject carries this provider's signature.
	Matches(sender, subject string) bool
	// Parse returns nil when the email does not contain a usable transaction.
	Parse(body string, meta Metadata) *model.ParsedTransaction
}

// signature is a provider's sender and subject pattern sets.
type signature struct {
	senders  []*regexp.Regexp
	subjects []*regexp.Regexp
}

func newSignature(senders, subjects []string) signature {
	return signature{
		senders:  common.MustCompileAll(senders...),
		subjects: common.MustCompileAll(subjects...),
	}
}

// Matches is true when either the sender or the subject matches.
func (s signature) Matches(sender, subject string) bool {
	sender = strings.ToLower(strings.TrimSpace(sender))
	return common.MatchAny(s.senders, sender) || common.MatchAny(s.subjects, subject)
}

// fieldPattern captures the value after "label:" up to the next "Word:" label,
// a currency marker or the end of the text.
func fieldPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + label + `\s*:\s*(.+?)(?:\s+\p{L}+(?:\s+de\s+\p{L}+)?\s*:|\s+(?:\$|USD\b|B/\.)|$)`)
}

// transactionDate prefers a date found in the text and falls back to the delivery time.
// The result is always in the home timezone.
func transactionDate(text string, meta Metadata) (time.Time, bool) {
	if t, ok := extract.DateTime(text, dedup.Location()); ok {
		return dedup.InHome(t), true
	}
	if !meta.ReceivedAt.IsZero() {
		return dedup.InHome(meta.ReceivedAt), true
	}
	return time.Time{}, false
}

// cleanName collapses whitespace and trims separators left around captured names.
func cleanName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " :-,.")
}

// usableName rejects captures that are too short or only a column header.
func usableName(s string) bool {
	if len(s) <= 2 {
		return false
	}
	switch strings.ToLower(s) {
	case "comercio", "monto", "lugar", "fecha":
		return false
	}
	return true
}

func firstName(text string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if name := cleanName(m[1]); usableName(name) {
			return name
		}
	}
	return ""
}
