// Package ingest runs mailbox messages through parsing and idempotent persistence.
//
// The per-message pipeline is fetch, normalize, detect, parse, dedup and
// persist. The per-notification pipeline diffs mailbox history from the stored
// cursor, runs every new message through the per-message pipeline and then
// advances the cursor whatever the individual outcomes were.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/dedup"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/parser"
	"github.com/Veraticus/the-spice-must-ingest/internal/service"
	"github.com/Veraticus/the-spice-must-ingest/internal/textnorm"
)

// Outcome is what happened to one message.
type Outcome string

// Per-message outcomes.
const (
	OutcomeStored    Outcome = "stored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnparsed  Outcome = "unparsed"
	OutcomeFailed    Outcome = "failed"
)

// Config holds orchestrator tuning.
type Config struct {
	// Now is the clock; nil means time.Now.
	Now func() time.Time
	// Retry bounds retries of transient mailbox and storage failures.
	Retry service.RetryOptions
	// Delay is the pause between message fetches in a batch.
	Delay time.Duration
	// FallbackDays is the reprocessing window used when the history cursor expired.
	FallbackDays int
	// DefaultLookbackDays is the minimum daily sync window.
	DefaultLookbackDays int
	// MaxLookbackDays caps the daily sync window.
	MaxLookbackDays int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Delay:               50 * time.Millisecond,
		FallbackDays:        7,
		DefaultLookbackDays: 7,
		MaxLookbackDays:     30,
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Orchestrator wires the mailbox, parser registry and storage together.
type Orchestrator struct {
	mailbox     service.Mailbox
	storage     service.Storage
	registry    *parser.Registry
	categorizer service.Categorizer
	logger      *slog.Logger
	cfg         Config
}

// New creates an orchestrator. categorizer and logger may be nil.
func New(mailbox service.Mailbox, storage service.Storage, registry *parser.Registry, categorizer service.Categorizer, logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	defaults := DefaultConfig()
	if cfg.FallbackDays <= 0 {
		cfg.FallbackDays = defaults.FallbackDays
	}
	if cfg.DefaultLookbackDays <= 0 {
		cfg.DefaultLookbackDays = defaults.DefaultLookbackDays
	}
	if cfg.MaxLookbackDays <= 0 {
		cfg.MaxLookbackDays = defaults.MaxLookbackDays
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	return &Orchestrator{
		mailbox:     mailbox,
		storage:     storage,
		registry:    registry,
		categorizer: categorizer,
		logger:      logger,
		cfg:         cfg,
	}
}

// Preview is the result of parsing a message without writing anything.
type Preview struct {
	Transaction *model.ParsedTransaction
	MessageID   string
	Subject     string
	Sender      string
	Provider    string
	// Key is the idempotency key the transaction would be stored under.
	Key string
}

// fetched is a message reduced to what the pipeline needs.
type fetched struct {
	msg      *model.Message
	text     string
	name     string
	address  string
	provider string
}

func (o *Orchestrator) fetch(ctx context.Context, messageID string) (*fetched, error) {
	var msg *model.Message
	err := o.retry(ctx, func() error {
		var getErr error
		msg, getErr = o.mailbox.GetMessage(ctx, messageID)
		return getErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	f := &fetched{msg: msg, text: textnorm.Normalize(msg.BodyText())}
	f.name, f.address = msg.From()
	f.provider, _ = o.registry.DetectProvider(f.address, msg.Subject())
	return f, nil
}

func (o *Orchestrator) parse(ctx context.Context, f *fetched) (parser.Result, bool) {
	return o.registry.ParseEmail(ctx, f.text, parser.Metadata{
		MessageID:  f.msg.ID,
		Sender:     f.address,
		Subject:    f.msg.Subject(),
		ReceivedAt: f.msg.InternalDate,
	})
}

// PreviewMessage fetches and parses a message without touching storage.
func (o *Orchestrator) PreviewMessage(ctx context.Context, messageID string) (*Preview, error) {
	f, err := o.fetch(ctx, messageID)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		MessageID: messageID,
		Subject:   f.msg.Subject(),
		Sender:    f.address,
		Provider:  f.provider,
	}
	if result, ok := o.parse(ctx, f); ok {
		p.Provider = result.Provider
		p.Transaction = result.Transaction
		p.Key = dedup.IdempotencyKey(messageID, result.Transaction.Date, result.Transaction.Amount, result.Transaction.Merchant)
	}
	return p, nil
}

// ProcessMessage runs one message through the full pipeline. Parse misses and
// duplicates are outcomes, not errors; an error means the message could not be
// fetched or persisted.
func (o *Orchestrator) ProcessMessage(ctx context.Context, messageID string) (Outcome, error) {
	start := time.Now()
	logger := o.logger.With("message_id", messageID)

	f, err := o.fetch(ctx, messageID)
	if err != nil {
		logger.Warn("message fetch failed", "error", err)
		return OutcomeFailed, err
	}

	email := &model.Email{
		MessageID:   messageID,
		HistoryID:   f.msg.HistoryID,
		FromAddress: f.address,
		FromName:    f.name,
		Subject:     f.msg.Subject(),
		ReceivedAt:  f.msg.InternalDate,
		BodyHash:    dedup.BodyHash(f.text),
		Labels:      f.msg.Labels,
		Provider:    f.provider,
	}

	var (
		emailID string
		created bool
	)
	err = o.retry(ctx, func() error {
		var insertErr error
		emailID, created, insertErr = o.storage.InsertEmail(ctx, email)
		return insertErr
	})
	if err != nil {
		logger.Error("failed to store email", "error", err)
		return OutcomeFailed, fmt.Errorf("failed to store email: %w", err)
	}

	if !created {
		existing, getErr := o.storage.GetEmailByMessageID(ctx, messageID)
		if getErr != nil {
			return OutcomeFailed, fmt.Errorf("failed to load existing email: %w", getErr)
		}
		if existing.Parsed {
			logger.Debug("message already ingested")
			return OutcomeDuplicate, nil
		}
		logger.Debug("reprocessing unparsed email", "email_id", emailID)
	}

	result, ok := o.parse(ctx, f)
	if !ok {
		logger.Info("no transaction extracted",
			"provider", f.provider,
			"subject", email.Subject)
		return OutcomeUnparsed, nil
	}

	outcome, err := o.store(ctx, emailID, messageID, result)
	if err != nil {
		logger.Error("failed to store transaction",
			"provider", result.Provider,
			"error", err)
		return OutcomeFailed, err
	}

	logger.Info("message processed",
		"outcome", outcome,
		"provider", result.Provider,
		"amount", result.Transaction.Amount.String(),
		"merchant", result.Transaction.Merchant,
		"duration", time.Since(start))
	return outcome, nil
}

// store persists a parsed transaction and flips the email to parsed. A
// transaction whose key already exists still marks the email parsed.
func (o *Orchestrator) store(ctx context.Context, emailID, messageID string, result parser.Result) (Outcome, error) {
	txn := result.Transaction

	var merchantID string
	if normalized := dedup.NormalizeMerchantName(txn.Merchant); normalized != "" {
		category := ""
		if o.categorizer != nil {
			category = o.categorizer.Categorize(txn.Merchant)
		}
		err := o.retry(ctx, func() error {
			var mErr error
			merchantID, mErr = o.storage.GetOrCreateMerchant(ctx, txn.Merchant, normalized, category)
			return mErr
		})
		if err != nil {
			return OutcomeFailed, fmt.Errorf("failed to resolve merchant: %w", err)
		}
	}

	ts := txn.Date
	record := &model.Transaction{
		EmailID:        emailID,
		MerchantID:     merchantID,
		Kind:           txn.Kind,
		Channel:        txn.Channel,
		Amount:         txn.Amount,
		Currency:       txn.Currency,
		MerchantName:   txn.Merchant,
		Date:           dedup.CivilDate(txn.Date),
		Timestamp:      &ts,
		CardLast4:      txn.CardLast4,
		Provider:       result.Provider,
		Reference:      txn.Reference,
		Description:    txn.Description,
		Notes:          txn.Notes,
		IdempotencyKey: dedup.IdempotencyKey(messageID, txn.Date, txn.Amount, txn.Merchant),
	}

	outcome := OutcomeStored
	err := o.retry(ctx, func() error {
		_, insertErr := o.storage.InsertTransaction(ctx, record)
		return insertErr
	})
	switch {
	case errors.Is(err, common.ErrDuplicateEntry):
		outcome = OutcomeDuplicate
	case err != nil:
		return OutcomeFailed, fmt.Errorf("failed to insert transaction: %w", err)
	}

	if err := o.retry(ctx, func() error {
		return o.storage.MarkEmailParsed(ctx, emailID)
	}); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to mark email parsed: %w", err)
	}
	return outcome, nil
}

func (o *Orchestrator) retry(ctx context.Context, op func() error) error {
	return common.WithRetry(ctx, op, o.cfg.Retry)
}

func (o *Orchestrator) now() time.Time {
	return o.cfg.Now()
}
