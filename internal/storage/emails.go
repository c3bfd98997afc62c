package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

// InsertEmail stores email unless its message id is already known.
// created is false when an existing row was found; its id is returned either way.
func (s *SQLiteStorage) InsertEmail(ctx context.Context, email *model.Email) (string, bool, error) {
	if err := validateContext(ctx); err != nil {
		return "", false, err
	}
	if err := validateEmail(email); err != nil {
		return "", false, err
	}

	labels, err := json.Marshal(email.Labels)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal labels: %w", err)
	}
	if email.Labels == nil {
		labels = []byte("[]")
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO emails (
			id, message_id, from_address, from_name, subject, received_at,
			body_hash, provider, labels, history_id, parsed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
	`, id, email.MessageID, email.FromAddress, email.FromName, email.Subject, email.ReceivedAt.UTC(),
		email.BodyHash, email.Provider, string(labels), int64(email.HistoryID), email.Parsed, now)
	if err != nil {
		return "", false, fmt.Errorf("failed to insert email: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to check insert result: %w", err)
	}
	if affected == 1 {
		email.ID = id
		email.CreatedAt = now
		return id, true, nil
	}

	existing, err := s.GetEmailByMessageID(ctx, email.MessageID)
	if err != nil {
		return "", false, fmt.Errorf("failed to load existing email: %w", err)
	}
	email.ID = existing.ID
	return existing.ID, false, nil
}

// GetEmailByMessageID returns the stored email or common.ErrNotFound.
func (s *SQLiteStorage) GetEmailByMessageID(ctx context.Context, messageID string) (*model.Email, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(messageID, "messageID"); err != nil {
		return nil, err
	}

	var (
		email     model.Email
		labels    string
		historyID int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, message_id, from_address, from_name, subject, received_at,
		       body_hash, provider, labels, history_id, parsed, created_at
		FROM emails WHERE message_id = ?
	`, messageID).Scan(
		&email.ID, &email.MessageID, &email.FromAddress, &email.FromName, &email.Subject, &email.ReceivedAt,
		&email.BodyHash, &email.Provider, &labels, &historyID, &email.Parsed, &email.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}

	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &email.Labels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
		}
	}
	email.HistoryID = uint64(historyID)

	return &email, nil
}

// MarkEmailParsed flags an email as having produced a transaction.
func (s *SQLiteStorage) MarkEmailParsed(ctx context.Context, emailID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(emailID, "emailID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE emails SET parsed = 1 WHERE id = ?`, emailID)
	if err != nil {
		return fmt.Errorf("failed to mark email parsed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// LatestEmailTime returns the newest stored received_at. ok is false when no email is stored.
func (s *SQLiteStorage) LatestEmailTime(ctx context.Context) (time.Time, bool, error) {
	if err := validateContext(ctx); err != nil {
		return time.Time{}, false, err
	}

	var latest time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT received_at FROM emails ORDER BY received_at DESC LIMIT 1
	`).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get latest email time: %w", err)
	}
	return latest, true, nil
}
