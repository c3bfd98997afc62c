package categorize

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedRules(t *testing.T) {
	engine, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded failed: %v", err)
	}

	tests := []struct {
		merchant string
		want     string
	}{
		{"STARBUCKS COSTA DEL ESTE", "Food & Dining"},
		{"Riba Smith Bella Vista", "Groceries"},
		{"UBER *TRIP", "Transportation"},
		{"NETFLIX.COM", "Entertainment"},
		{"AMAZON MKTPLACE", "Shopping"},
		{"CABLE ONDA", "Bills & Utilities"},
		{"FARMACIAS ARROCHA", "Healthcare"},
		{"COPA AIRLINES", "Travel"},
		{"UDEMY", "Education"},
		{"BINANCE", "Investment"},
		{"GYM MEMBERSHIP", "Subscriptions"},
		{"PRESTAMO PERSONAL", "Pago Mensual"},
		{"Juan Perez YAPPY", "Transfers"},
		{"AUTO REPAIR PTY", "Services"},
		{"ACME LTD", "Other"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.merchant, func(t *testing.T) {
			if got := engine.Categorize(tt.merchant); got != tt.want {
				t.Errorf("Categorize(%q) = %q, want %q", tt.merchant, got, tt.want)
			}
		})
	}
}

func TestPriorityWins(t *testing.T) {
	engine, err := NewEngine([]byte(`
rules:
  - category: Transfers
    priority: 10
    keywords: [pay]
  - category: Subscriptions
    priority: 50
    keywords: [monthly]
`))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if got := engine.Categorize("monthly pay"); got != "Subscriptions" {
		t.Errorf("got %q, want Subscriptions", got)
	}
	if got := engine.Categorize("nothing"); got != "" {
		t.Errorf("got %q, want empty without a default", got)
	}
}

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "rules: [:"},
		{"unknown category", "rules:\n  - category: Snacks\n    keywords: [chips]\n"},
		{"no keywords", "rules:\n  - category: Groceries\n    keywords: ['  ']\n"},
		{"bad default", "default: Misc\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("default: Other\nrules:\n  - category: Travel\n    keywords: [panama hat]\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	engine, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if got := engine.Categorize("Panama Hat Tours"); got != "Travel" {
		t.Errorf("got %q", got)
	}
	if got := engine.Categorize("Uber"); got != "Other" {
		t.Errorf("custom rules should replace built-ins, got %q", got)
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFromFile(""); err != nil {
		t.Errorf("empty path should load built-ins: %v", err)
	}
}
