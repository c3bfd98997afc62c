package dedup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBodyHashIgnoresWhitespace(t *testing.T) {
	a := BodyHash("Monto: USD 14.00\n\nComercio SUPER 99")
	b := BodyHash("  Monto:   USD 14.00 Comercio\tSUPER 99 ")
	if a != b {
		t.Errorf("BodyHash differs for whitespace-only changes: %s vs %s", a, b)
	}
	if a == BodyHash("Monto: USD 15.00 Comercio SUPER 99") {
		t.Error("BodyHash should change when content changes")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %d chars", len(a))
	}
}

func TestIdempotencyKey(t *testing.T) {
	ts := time.Date(2025, 10, 6, 19, 47, 26, 0, Location())
	amount := decimal.RequireFromString("436.93")

	base := IdempotencyKey("msg-1", ts, amount, "Loan Payment")

	t.Run("stable across calls and equivalent inputs", func(t *testing.T) {
		if got := IdempotencyKey("msg-1", ts.UTC(), decimal.RequireFromString("436.930"), "  loan payment "); got != base {
			t.Errorf("expected identical key, got %s vs %s", got, base)
		}
	})

	t.Run("differs per field", func(t *testing.T) {
		variants := map[string]string{
			"message":  IdempotencyKey("msg-2", ts, amount, "Loan Payment"),
			"time":     IdempotencyKey("msg-1", ts.Add(time.Second), amount, "Loan Payment"),
			"amount":   IdempotencyKey("msg-1", ts, decimal.RequireFromString("436.94"), "Loan Payment"),
			"merchant": IdempotencyKey("msg-1", ts, amount, "Other Merchant"),
		}
		for name, key := range variants {
			if key == base {
				t.Errorf("changing %s should change the key", name)
			}
		}
	})
}

func TestNormalizeMerchantName(t *testing.T) {
	tests := map[string]string{
		"SUPER 99 - Vía España": "super 99 via espana",
		"  McDonald's   #123 ":  "mcdonalds 123",
		"CAFÉ Ñandú, S.A.":      "cafe nandu sa",
		"":                      "",
	}
	for in, want := range tests {
		if got := NormalizeMerchantName(in); got != want {
			t.Errorf("NormalizeMerchantName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCivilDateUsesHomeZone(t *testing.T) {
	// 02:30 UTC on Oct 7 is still Oct 6 in Panama.
	ts := time.Date(2025, 10, 7, 2, 30, 0, 0, time.UTC)
	if got := CivilDate(ts); got != "2025-10-06" {
		t.Errorf("CivilDate() = %s, want 2025-10-06", got)
	}
}
