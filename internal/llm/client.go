package llm

import (
	"context"
	"time"
)

// Client sends a single prompt to a model and returns its raw text reply.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is one system + user prompt exchange.
type CompletionRequest struct {
	System string
	Prompt string
}

// Config configures the model client and the extractor built on it.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxRetries  int
	RetryDelay  time.Duration
	CacheTTL    time.Duration
	Timeout     time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

// Enabled reports whether the configuration carries credentials.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}
