package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

// InsertTransaction stores txn and updates its merchant's aggregates in one
// database transaction. A second insert with the same idempotency key returns
// the existing id together with common.ErrDuplicateEntry.
func (s *SQLiteStorage) InsertTransaction(ctx context.Context, txn *model.Transaction) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateTransaction(txn); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	now := time.Now().UTC()

	var timestamp sql.NullTime
	if txn.Timestamp != nil {
		timestamp = sql.NullTime{Time: txn.Timestamp.UTC(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, email_id, merchant_id, idempotency_key, provider, kind, channel,
			amount, currency, merchant_name, date, timestamp, card_last4,
			reference, description, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, txn.EmailID, nullString(txn.MerchantID), txn.IdempotencyKey, txn.Provider,
		string(txn.Kind), string(txn.Channel), txn.Amount.String(), txn.Currency,
		txn.MerchantName, txn.Date, timestamp, txn.CardLast4,
		txn.Reference, txn.Description, txn.Notes, now)
	if err != nil {
		if isUniqueViolation(err) {
			_ = tx.Rollback()
			existing, getErr := s.GetTransactionByKey(ctx, txn.IdempotencyKey)
			if getErr != nil {
				return "", fmt.Errorf("%w: %s", common.ErrDuplicateEntry, txn.IdempotencyKey)
			}
			return existing.ID, fmt.Errorf("%w: %s", common.ErrDuplicateEntry, txn.IdempotencyKey)
		}
		return "", fmt.Errorf("failed to insert transaction: %w", err)
	}

	if txn.MerchantID != "" {
		if err := bumpMerchantTx(ctx, tx, txn.MerchantID, txn.Amount); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	txn.ID = id
	txn.CreatedAt = now
	return id, nil
}

// GetTransactionByKey returns the transaction with idempotencyKey or common.ErrNotFound.
func (s *SQLiteStorage) GetTransactionByKey(ctx context.Context, idempotencyKey string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(idempotencyKey, "idempotencyKey"); err != nil {
		return nil, err
	}

	var (
		txn        model.Transaction
		merchantID sql.NullString
		kind       string
		channel    string
		amount     string
		timestamp  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email_id, merchant_id, idempotency_key, provider, kind, channel,
		       amount, currency, merchant_name, date, timestamp, card_last4,
		       reference, description, notes, created_at
		FROM transactions WHERE idempotency_key = ?
	`, idempotencyKey).Scan(
		&txn.ID, &txn.EmailID, &merchantID, &txn.IdempotencyKey, &txn.Provider, &kind, &channel,
		&amount, &txn.Currency, &txn.MerchantName, &txn.Date, &timestamp, &txn.CardLast4,
		&txn.Reference, &txn.Description, &txn.Notes, &txn.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	txn.MerchantID = merchantID.String
	txn.Kind = model.Kind(kind)
	txn.Channel = model.Channel(channel)
	txn.Timestamp = timePtr(timestamp)
	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount for transaction %s: %w", txn.ID, err)
	}

	return &txn, nil
}

// CountTransactionsForEmail returns how many transactions reference an email.
func (s *SQLiteStorage) CountTransactionsForEmail(ctx context.Context, emailID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE email_id = ?`, emailID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
