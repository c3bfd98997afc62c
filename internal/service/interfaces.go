// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Email operations
	InsertEmail(ctx context.Context, email *model.Email) (id string, created bool, err error)
	GetEmailByMessageID(ctx context.Context, messageID string) (*model.Email, error)
	MarkEmailParsed(ctx context.Context, emailID string) error
	LatestEmailTime(ctx context.Context) (time.Time, bool, error)

	// Merchant operations
	GetOrCreateMerchant(ctx context.Context, name, normalizedName, category string) (string, error)
	GetMerchantByNormalizedName(ctx context.Context, normalizedName string) (*model.Merchant, error)

	// Transaction operations
	InsertTransaction(ctx context.Context, txn *model.Transaction) (string, error)
	GetTransactionByKey(ctx context.Context, idempotencyKey string) (*model.Transaction, error)

	// Sync cursor
	GetCursor(ctx context.Context) (model.SyncState, error)
	SetCursor(ctx context.Context, historyID uint64, syncedAt time.Time) error
	SetWatchExpiration(ctx context.Context, expiration time.Time) error

	// Monitoring
	GetStats(ctx context.Context) (*model.Stats, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// HistoryRecord is one entry of the mailbox change stream.
type HistoryRecord struct {
	AddedMessageIDs []string
	ID              uint64
}

// WatchResponse describes an active mailbox push subscription.
type WatchResponse struct {
	Expiration time.Time
	HistoryID  uint64
}

// Mailbox is the remote mailbox the pipeline reads from.
type Mailbox interface {
	// ListMessageIDs returns ids matching query, newest first, up to max (0 = no limit).
	ListMessageIDs(ctx context.Context, query string, maxResults int) ([]string, error)
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	// DiffHistory lists message additions after fromID. It returns
	// common.ErrHistoryExpired when fromID is no longer retained.
	DiffHistory(ctx context.Context, fromID uint64) ([]HistoryRecord, error)
	CurrentHistoryID(ctx context.Context) (uint64, error)
	Watch(ctx context.Context, topic string, labels []string) (WatchResponse, error)
}

// Categorizer assigns an optional category to a merchant.
type Categorizer interface {
	Categorize(merchantName string) string
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
