package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

type cursorDocData struct {
	LastSyncedAt    *time.Time `firestore:"lastSyncedAt"`
	WatchExpiration *time.Time `firestore:"watchExpiration"`
	LastHistoryID   int64      `firestore:"lastHistoryId"`
}

// GetCursor returns the sync cursor. A zero state means UNINITIALIZED.
func (s *Store) GetCursor(ctx context.Context) (model.SyncState, error) {
	snap, err := s.cursorRef().Get(ctx)
	if isNotFound(err) {
		return model.SyncState{}, nil
	}
	if err != nil {
		return model.SyncState{}, classify(err, "get sync cursor")
	}

	var doc cursorDocData
	if err := snap.DataTo(&doc); err != nil {
		return model.SyncState{}, fmt.Errorf("failed to decode sync cursor: %w", err)
	}
	return model.SyncState{
		LastHistoryID:   uint64(doc.LastHistoryID),
		LastSyncedAt:    utcPtr(doc.LastSyncedAt),
		WatchExpiration: utcPtr(doc.WatchExpiration),
	}, nil
}

// SetCursor advances the cursor to historyID. Attempts to move it backwards are ignored.
func (s *Store) SetCursor(ctx context.Context, historyID uint64, syncedAt time.Time) error {
	ref := s.cursorRef()
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && !isNotFound(err) {
			return err
		}
		if err == nil {
			var current cursorDocData
			if err := snap.DataTo(&current); err != nil {
				return fmt.Errorf("failed to decode sync cursor: %w", err)
			}
			if uint64(current.LastHistoryID) > historyID {
				return nil
			}
		}
		return tx.Set(ref, map[string]any{
			"lastHistoryId": int64(historyID),
			"lastSyncedAt":  syncedAt.UTC(),
		}, firestore.MergeAll)
	})
	if err != nil {
		return classify(err, "set sync cursor")
	}
	return nil
}

// SetWatchExpiration records when the mailbox push subscription lapses.
func (s *Store) SetWatchExpiration(ctx context.Context, expiration time.Time) error {
	_, err := s.cursorRef().Set(ctx, map[string]any{
		"watchExpiration": expiration.UTC(),
	}, firestore.MergeAll)
	if err != nil {
		return classify(err, "set watch expiration")
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
