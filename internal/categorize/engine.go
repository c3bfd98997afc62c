// Package categorize assigns spending categories to merchants from keyword rules.
package categorize

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/the-spice-must-ingest/internal/service"
)

//go:embed rules.yaml
var embeddedRules []byte

// Categories is the closed set of category names rules may assign.
var Categories = []string{
	"Food & Dining",
	"Groceries",
	"Transportation",
	"Entertainment",
	"Shopping",
	"Bills & Utilities",
	"Healthcare",
	"Travel",
	"Education",
	"Services",
	"Subscriptions",
	"Transfers",
	"Investment",
	"Pago Mensual",
	"Other",
}

// Rule maps any of its keywords to a category.
type Rule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Priority int      `yaml:"priority"`
}

// RuleSet is the top-level YAML document.
type RuleSet struct {
	Default string `yaml:"default"`
	Rules   []Rule `yaml:"rules"`
}

// Engine matches merchant names against rules sorted by priority.
type Engine struct {
	fallback string
	rules    []Rule
}

var _ service.Categorizer = (*Engine)(nil)

// NewEngine parses and validates a YAML rule set.
func NewEngine(data []byte) (*Engine, error) {
	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse category rules: %w", err)
	}

	if set.Default != "" && !ValidCategory(set.Default) {
		return nil, fmt.Errorf("invalid default category %q", set.Default)
	}

	rules := make([]Rule, 0, len(set.Rules))
	for i, rule := range set.Rules {
		if !ValidCategory(rule.Category) {
			return nil, fmt.Errorf("rule %d: invalid category %q", i, rule.Category)
		}
		keywords := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			kw = strings.ToUpper(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("rule %d (%s): no keywords", i, rule.Category)
		}
		rule.Keywords = keywords
		rules = append(rules, rule)
	}

	// Stable keeps file order for equal priorities.
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	return &Engine{rules: rules, fallback: set.Default}, nil
}

// LoadEmbedded returns an engine over the built-in rules.
func LoadEmbedded() (*Engine, error) {
	return NewEngine(embeddedRules)
}

// LoadFromFile reads rules from path, or the built-in rules when path is empty.
func LoadFromFile(path string) (*Engine, error) {
	if path == "" {
		return LoadEmbedded()
	}
	data, err := os.ReadFile(path) // #nosec G304 - path comes from user configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read category rules: %w", err)
	}
	return NewEngine(data)
}

// Categorize returns the category of the first matching rule, or the default.
func (e *Engine) Categorize(merchantName string) string {
	name := strings.ToUpper(merchantName)
	if strings.TrimSpace(name) == "" {
		return ""
	}
	for _, rule := range e.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(name, kw) {
				return rule.Category
			}
		}
	}
	return e.fallback
}

// ValidCategory reports whether name is one of Categories.
func ValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}
