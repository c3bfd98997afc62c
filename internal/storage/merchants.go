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

// GetOrCreateMerchant returns the id of the merchant with normalizedName,
// creating it when missing. A concurrent creator winning the race is resolved
// by re-reading the row. An empty stored category is filled from category.
func (s *SQLiteStorage) GetOrCreateMerchant(ctx context.Context, name, normalizedName, category string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(normalizedName, "normalizedName"); err != nil {
		return "", err
	}

	existing, err := s.GetMerchantByNormalizedName(ctx, normalizedName)
	switch {
	case err == nil:
		if existing.Category == "" && category != "" {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE merchants SET category = ? WHERE id = ? AND category = ''`,
				category, existing.ID); err != nil {
				return "", fmt.Errorf("failed to set merchant category: %w", err)
			}
		}
		return existing.ID, nil
	case !errors.Is(err, common.ErrNotFound):
		return "", err
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO merchants (id, name, normalized_name, category, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, normalizedName, category, time.Now().UTC())
	if err == nil {
		return id, nil
	}
	if !isUniqueViolation(err) {
		return "", fmt.Errorf("failed to create merchant: %w", err)
	}

	existing, err = s.GetMerchantByNormalizedName(ctx, normalizedName)
	if err != nil {
		return "", fmt.Errorf("failed to re-read merchant after conflict: %w", err)
	}
	return existing.ID, nil
}

// GetMerchantByNormalizedName returns the merchant or common.ErrNotFound.
func (s *SQLiteStorage) GetMerchantByNormalizedName(ctx context.Context, normalizedName string) (*model.Merchant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		merchant model.Merchant
		total    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, normalized_name, category, transaction_count, total_amount
		FROM merchants WHERE normalized_name = ?
	`, normalizedName).Scan(
		&merchant.ID, &merchant.Name, &merchant.NormalizedName,
		&merchant.Category, &merchant.TransactionCount, &total,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}

	merchant.TotalAmount, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("invalid stored total for merchant %s: %w", merchant.ID, err)
	}
	return &merchant, nil
}

// bumpMerchantTx adds one transaction of amount to a merchant's aggregates.
func bumpMerchantTx(ctx context.Context, tx *sql.Tx, merchantID string, amount decimal.Decimal) error {
	var total string
	err := tx.QueryRowContext(ctx, `SELECT total_amount FROM merchants WHERE id = ?`, merchantID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("merchant %s: %w", merchantID, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read merchant totals: %w", err)
	}

	current, err := decimal.NewFromString(total)
	if err != nil {
		return fmt.Errorf("invalid stored total for merchant %s: %w", merchantID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE merchants
		SET transaction_count = transaction_count + 1, total_amount = ?
		WHERE id = ?
	`, current.Add(amount).String(), merchantID)
	if err != nil {
		return fmt.Errorf("failed to update merchant totals: %w", err)
	}
	return nil
}
