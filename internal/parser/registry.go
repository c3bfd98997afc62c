package parser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-spice-must-ingest/internal/dedup"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

// FallbackID is the provider id recorded for transactions the fallback extracted.
const FallbackID = "llm"

// Fallback is a generic extractor used when no provider parser produces a transaction.
// It returns (nil, nil) when the body holds no usable transaction.
type Fallback interface {
	Parse(ctx context.Context, body string) (*model.ParsedTransaction, error)
}

// Result is a parsed transaction and the provider that produced it.
type Result struct {
	Transaction *model.ParsedTransaction
	Provider    string
}

// Registry holds provider parsers in detection precedence order.
type Registry struct {
	fallback Fallback
	logger   *slog.Logger
	parsers  []Parser
}

// DefaultParsers returns the built-in providers in precedence order.
func DefaultParsers() []Parser {
	return []Parser{
		NewBAC(),
		NewBanistmo(),
		NewBanisi(),
		NewClave(),
		NewYappy(),
	}
}

// NewRegistry creates a registry. fallback may be nil.
func NewRegistry(logger *slog.Logger, fallback Fallback, parsers ...Parser) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		fallback: fallback,
		logger:   logger,
		parsers:  parsers,
	}
}

// NewDefaultRegistry creates a registry with the built-in providers.
func NewDefaultRegistry(logger *slog.Logger, fallback Fallback) *Registry {
	return NewRegistry(logger, fallback, DefaultParsers()...)
}

// Register appends a parser with the lowest precedence.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// ListParsers returns the registered provider ids in precedence order.
func (r *Registry) ListParsers() []string {
	ids := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		ids[i] = p.ID()
	}
	return ids
}

// DetectProvider returns the first provider whose signature matches.
func (r *Registry) DetectProvider(sender, subject string) (string, bool) {
	if p := r.detect(sender, subject); p != nil {
		return p.ID(), true
	}
	return "", false
}

// ParseEmail runs the first matching provider parser and, if it yields nothing,
// the fallback. A provider that matches but fails does not hand over to another
// provider. The bool is false when nothing could be extracted.
func (r *Registry) ParseEmail(ctx context.Context, body string, meta Metadata) (Result, bool) {
	if p := r.detect(meta.Sender, meta.Subject); p != nil {
		if txn := r.safeParse(p, body, meta); txn != nil {
			return Result{Provider: p.ID(), Transaction: txn}, true
		}
		r.logger.Debug("provider parser matched but extracted nothing",
			"provider", p.ID(),
			"message_id", meta.MessageID)
	}

	if r.fallback == nil {
		return Result{}, false
	}

	txn, err := r.safeFallback(ctx, body)
	if err != nil {
		r.logger.Warn("fallback parser failed",
			"message_id", meta.MessageID,
			"error", err)
		return Result{}, false
	}
	if txn == nil {
		return Result{}, false
	}

	txn.Date = dedup.InHome(txn.Date)
	if err := validate(txn); err != nil {
		r.logger.Warn("fallback parser returned an invalid transaction",
			"message_id", meta.MessageID,
			"error", err)
		return Result{}, false
	}

	return Result{Provider: FallbackID, Transaction: txn}, true
}

func (r *Registry) detect(sender, subject string) Parser {
	for _, p := range r.parsers {
		if r.safeMatches(p, sender, subject) {
			return p
		}
	}
	return nil
}

func (r *Registry) safeMatches(p Parser, sender, subject string) (matched bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("parser panicked while matching",
				"provider", p.ID(),
				"panic", fmt.Sprint(rec))
			matched = false
		}
	}()
	return p.Matches(sender, subject)
}

func (r *Registry) safeParse(p Parser, body string, meta Metadata) (txn *model.ParsedTransaction) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("parser panicked",
				"provider", p.ID(),
				"message_id", meta.MessageID,
				"panic", fmt.Sprint(rec))
			txn = nil
		}
	}()

	txn = p.Parse(body, meta)
	if txn == nil {
		return nil
	}
	if err := validate(txn); err != nil {
		r.logger.Warn("provider parser returned an invalid transaction",
			"provider", p.ID(),
			"message_id", meta.MessageID,
			"error", err)
		return nil
	}
	return txn
}

func (r *Registry) safeFallback(ctx context.Context, body string) (txn *model.ParsedTransaction, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			txn, err = nil, fmt.Errorf("fallback parser panicked: %v", rec)
		}
	}()
	return r.fallback.Parse(ctx, body)
}

// validate enforces the minimum shape every stored transaction needs.
func validate(txn *model.ParsedTransaction) error {
	switch {
	case !txn.Amount.IsPositive():
		return fmt.Errorf("amount must be positive, got %s", txn.Amount)
	case txn.Date.IsZero():
		return fmt.Errorf("missing date")
	case !txn.Kind.Valid():
		return fmt.Errorf("invalid kind %q", txn.Kind)
	case !txn.Channel.Valid():
		return fmt.Errorf("invalid channel %q", txn.Channel)
	case len(txn.Currency) != 3:
		return fmt.Errorf("invalid currency %q", txn.Currency)
	case txn.Merchant == "":
		return fmt.Errorf("missing merchant")
	}
	return nil
}
