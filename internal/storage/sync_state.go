package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

// GetCursor returns the sync cursor. A zero state means UNINITIALIZED.
func (s *SQLiteStorage) GetCursor(ctx context.Context) (model.SyncState, error) {
	if err := validateContext(ctx); err != nil {
		return model.SyncState{}, err
	}

	var (
		historyID  int64
		syncedAt   sql.NullTime
		expiration sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT last_history_id, last_synced_at, watch_expiration FROM sync_state WHERE id = 1
	`).Scan(&historyID, &syncedAt, &expiration)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncState{}, nil
	}
	if err != nil {
		return model.SyncState{}, fmt.Errorf("failed to get sync cursor: %w", err)
	}

	return model.SyncState{
		LastHistoryID:   uint64(historyID),
		LastSyncedAt:    timePtr(syncedAt),
		WatchExpiration: timePtr(expiration),
	}, nil
}

// SetCursor advances the cursor to historyID. Attempts to move it backwards are ignored.
func (s *SQLiteStorage) SetCursor(ctx context.Context, historyID uint64, syncedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_history_id, last_synced_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_history_id = excluded.last_history_id,
			last_synced_at = excluded.last_synced_at
		WHERE excluded.last_history_id >= sync_state.last_history_id
	`, int64(historyID), syncedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to set sync cursor: %w", err)
	}
	return nil
}

// SetWatchExpiration records when the mailbox push subscription lapses.
func (s *SQLiteStorage) SetWatchExpiration(ctx context.Context, expiration time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, watch_expiration) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET watch_expiration = excluded.watch_expiration
	`, expiration.UTC())
	if err != nil {
		return fmt.Errorf("failed to set watch expiration: %w", err)
	}
	return nil
}
