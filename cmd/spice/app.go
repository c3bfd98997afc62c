package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-spice-must-ingest/internal/categorize"
	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/config"
	"github.com/Veraticus/the-spice-must-ingest/internal/firestore"
	"github.com/Veraticus/the-spice-must-ingest/internal/ingest"
	"github.com/Veraticus/the-spice-must-ingest/internal/llm"
	"github.com/Veraticus/the-spice-must-ingest/internal/mailbox"
	"github.com/Veraticus/the-spice-must-ingest/internal/parser"
	"github.com/Veraticus/the-spice-must-ingest/internal/service"
	"github.com/Veraticus/the-spice-must-ingest/internal/storage"
)

// app holds the collaborators a command runs against.
type app struct {
	cfg     *config.Config
	storage service.Storage
	mailbox service.Mailbox
	orch    *ingest.Orchestrator
	logger  *slog.Logger
	closers []func()
}

// appOptions control which collaborators newApp builds.
type appOptions struct {
	// mailbox is false for commands that only touch storage.
	mailbox bool
	// modify requests the gmail.modify scope needed by users.watch.
	modify bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: slog.Default()}

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.storage = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	if !opts.mailbox {
		return a, nil
	}

	mb, err := openMailbox(ctx, cfg, opts.modify)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.mailbox = mb

	categorizer, err := categorize.LoadFromFile(cfg.RulesFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load categorization rules: %w", err)
	}

	registry := parser.NewDefaultRegistry(a.logger, a.fallback())
	a.orch = ingest.New(mb, store, registry, categorizer, a.logger, cfg.Orchestrator())
	return a, nil
}

// fallback returns the model extractor, or nil when no API key is configured.
func (a *app) fallback() parser.Fallback {
	extractor, err := llm.NewExtractor(a.cfg.LLM, a.logger)
	if errors.Is(err, common.ErrMissingConfig) {
		a.logger.Warn("LLM fallback disabled, no API key configured")
		return nil
	}
	if err != nil {
		a.logger.Warn("LLM fallback disabled", "error", err)
		return nil
	}
	a.closers = append(a.closers, extractor.Close)
	return extractor
}

// Close releases everything newApp opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openStorage(ctx context.Context, cfg *config.Config) (service.Storage, error) {
	switch cfg.Database.Backend {
	case config.BackendFirestore:
		return firestore.Open(ctx, cfg.Database.ProjectID, cfg.Database.CollectionPrefix)
	default:
		store, err := storage.NewSQLiteStorage(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return store, nil
	}
}

func openMailbox(ctx context.Context, cfg *config.Config, modify bool) (service.Mailbox, error) {
	if cfg.Gmail.EMLDir != "" {
		return mailbox.NewDirectoryMailbox(cfg.Gmail.EMLDir)
	}

	opts, err := mailbox.ClientOptions(ctx, cfg.OAuth(modify))
	if err != nil {
		return nil, common.NewUserError("Gmail is not authorized yet. Run `spice auth gmail` first.", err)
	}
	return mailbox.NewGmailClient(ctx, mailbox.GmailConfig{
		Logger: slog.Default(),
		User:   cfg.Gmail.User,
	}, opts...)
}
