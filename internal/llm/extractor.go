package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/dedup"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/service"
)

var (
	jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)
	cardLast4Re  = regexp.MustCompile(`^\d{4}$`)
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	model.CivilDateLayout,
}

// Extractor turns an arbitrary email body into a transaction with a language model.
// It satisfies parser.Fallback.
type Extractor struct {
	client  Client
	cache   *resultCache
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
	retry   service.RetryOptions
}

// NewExtractor builds an extractor for cfg. It fails with common.ErrMissingConfig
// when no API key is configured; callers treat that as "fallback disabled".
func NewExtractor(cfg Config, logger *slog.Logger) (*Extractor, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("llm fallback disabled: %w", common.ErrMissingConfig)
	}
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewExtractorWithClient(client, cfg, logger), nil
}

// NewExtractorWithClient wraps an existing client.
func NewExtractorWithClient(client Client, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = time.Second
	}
	return &Extractor{
		client:  client,
		cache:   newResultCache(cfg.CacheTTL),
		limiter: newLimiter(cfg.RateLimit),
		logger:  logger,
		now:     time.Now,
		retry: service.RetryOptions{
			MaxAttempts:  maxRetries,
			InitialDelay: retryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Parse asks the model for a transaction. It returns (nil, nil) when the reply
// is not a usable transaction, and an error only when the model could not be reached.
func (e *Extractor) Parse(ctx context.Context, body string) (*model.ParsedTransaction, error) {
	key := dedup.BodyHash(body)
	if txn, ok := e.cache.get(key); ok {
		e.logger.Debug("llm result served from cache", "body_hash", key)
		return txn, nil
	}

	start := time.Now()
	req := CompletionRequest{
		System: systemPrompt,
		Prompt: buildPrompt(body, dedup.InHome(e.now())),
	}

	var content string
	err := common.WithRetry(ctx, func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		var callErr error
		content, callErr = e.client.Complete(ctx, req)
		return callErr
	}, e.retry)
	if err != nil {
		return nil, fmt.Errorf("llm extraction failed: %w", err)
	}

	txn, err := decodeTransaction(content)
	if err != nil {
		e.logger.Warn("llm reply rejected",
			"duration", time.Since(start),
			"error", err)
		e.cache.set(key, nil)
		return nil, nil
	}

	e.logger.Info("llm parsing successful",
		"duration", time.Since(start),
		"provider", "llm")
	e.cache.set(key, txn)
	return txn, nil
}

// Close stops the cache cleanup goroutine.
func (e *Extractor) Close() {
	e.cache.Close()
}

// newLimiter allows requestsPerMinute calls per minute with an equal burst.
func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
}

type extraction struct {
	Type            string          `json:"type"`
	Channel         string          `json:"channel"`
	Amount          json.RawMessage `json:"amount"`
	Currency        string          `json:"currency"`
	Merchant        string          `json:"merchant"`
	Date            string          `json:"date"`
	CardLast4       string          `json:"cardLast4"`
	ReferenceNumber string          `json:"referenceNumber"`
	Description     string          `json:"description"`
}

var errNoJSON = errors.New("no JSON object in reply")

// decodeTransaction pulls the first JSON object out of a reply and validates it.
func decodeTransaction(content string) (*model.ParsedTransaction, error) {
	raw := jsonObjectRe.FindString(content)
	if raw == "" {
		return nil, errNoJSON
	}

	var out extraction
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to parse JSON reply: %w", err)
	}

	kind := model.Kind(strings.ToLower(strings.TrimSpace(out.Type)))
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid type %q", out.Type)
	}
	channel := model.Channel(strings.ToLower(strings.TrimSpace(out.Channel)))
	if !channel.Valid() {
		return nil, fmt.Errorf("invalid channel %q", out.Channel)
	}

	if len(out.Amount) == 0 {
		return nil, fmt.Errorf("missing amount")
	}
	var amount decimal.Decimal
	if err := amount.UnmarshalJSON(out.Amount); err != nil {
		return nil, fmt.Errorf("invalid amount %s: %w", out.Amount, err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", amount)
	}

	currency := strings.ToUpper(strings.TrimSpace(out.Currency))
	if currency == "" {
		currency = model.DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("invalid currency %q", out.Currency)
	}

	merchant := strings.TrimSpace(out.Merchant)
	if merchant == "" {
		return nil, fmt.Errorf("missing merchant")
	}

	date, err := parseDate(out.Date)
	if err != nil {
		return nil, err
	}

	card := strings.TrimSpace(out.CardLast4)
	if card != "" && !cardLast4Re.MatchString(card) {
		return nil, fmt.Errorf("invalid cardLast4 %q", out.CardLast4)
	}

	return &model.ParsedTransaction{
		Date:        date,
		Amount:      amount,
		Kind:        kind,
		Channel:     channel,
		Currency:    currency,
		Merchant:    merchant,
		CardLast4:   card,
		Reference:   strings.TrimSpace(out.ReferenceNumber),
		Description: strings.TrimSpace(out.Description),
	}, nil
}

// parseDate accepts ISO 8601 dates; values without an offset are home-zone wall time.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	for _, layout := range dateLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, dedup.Location())
		}
		if err == nil {
			return dedup.InHome(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
