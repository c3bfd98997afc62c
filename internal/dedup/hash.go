// Package dedup derives the keys that keep ingestion idempotent: a body hash
// for email-level dedup and an idempotency key for transaction-level dedup.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// keyTimeLayout keeps millisecond precision so keys are stable across stores.
const keyTimeLayout = "2006-01-02T15:04:05.000Z07:00"

var nonKeyChars = regexp.MustCompile(`[^a-z0-9\s]`)

// BodyHash fingerprints normalized body text. Whitespace differences do not change the hash.
func BodyHash(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	return sum(collapsed)
}

// IdempotencyKey derives the unique key for a transaction.
// Format: SHA256("{messageID}|{timestamp in home zone}|{amount}|{lower(merchant)}")
//
// Reference numbers are deliberately not part of the key: two same-day,
// same-amount charges with identical merchant text in one email collapse into one row.
func IdempotencyKey(messageID string, ts time.Time, amount decimal.Decimal, merchant string) string {
	input := strings.Join([]string{
		messageID,
		InHome(ts).Format(keyTimeLayout),
		amount.String(),
		strings.ToLower(strings.TrimSpace(merchant)),
	}, "|")
	return sum(input)
}

// NormalizeMerchantName folds a merchant name into its dedup key:
// accents removed, lower-cased, punctuation dropped, whitespace collapsed.
func NormalizeMerchantName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	folded = nonKeyChars.ReplaceAllString(folded, "")
	return strings.Join(strings.Fields(folded), " ")
}

func sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
