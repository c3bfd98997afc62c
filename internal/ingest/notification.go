package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/mailbox"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/service"
)

// NotificationResult summarizes one HandleNotification call.
type NotificationResult struct {
	Batch BatchStats
	// PreviousCursor is the cursor before the call; zero when uninitialized.
	PreviousCursor uint64
	Cursor         uint64
	// Initialized is set when this notification created the cursor.
	Initialized bool
	// Stale is set when the notification was at or behind the cursor.
	Stale bool
	// Expired is set when the cursor had aged out and the fallback window was used.
	Expired bool
}

// HandleNotification advances the sync cursor to historyID. The first
// notification only records the cursor. Later ones process every message added
// since the stored cursor and then move the cursor to historyID even if some of
// those messages failed. Fatal errors leave the cursor where it was.
func (o *Orchestrator) HandleNotification(ctx context.Context, historyID uint64) (NotificationResult, error) {
	logger := o.logger.With("history_id", historyID)

	state, err := o.cursor(ctx)
	if err != nil {
		return NotificationResult{}, err
	}
	result := NotificationResult{PreviousCursor: state.LastHistoryID, Cursor: state.LastHistoryID}

	if !state.Initialized() {
		if err := o.storage.SetCursor(ctx, historyID, o.now()); err != nil {
			return result, fmt.Errorf("failed to initialize cursor: %w", err)
		}
		logger.Info("sync cursor initialized")
		result.Cursor = historyID
		result.Initialized = true
		return result, nil
	}

	if historyID <= state.LastHistoryID {
		logger.Debug("stale notification ignored", "cursor", state.LastHistoryID)
		result.Stale = true
		return result, nil
	}

	ids, expired, err := o.changedMessages(ctx, state.LastHistoryID, historyID)
	if err != nil {
		return result, err
	}
	result.Expired = expired

	logger.Info("processing notification",
		"cursor", state.LastHistoryID,
		"messages", len(ids),
		"expired", expired)

	batch, err := o.ProcessIDs(ctx, ids, BatchOptions{})
	result.Batch = batch
	if err != nil {
		return result, err
	}

	if err := o.storage.SetCursor(ctx, historyID, o.now()); err != nil {
		return result, fmt.Errorf("failed to advance cursor: %w", err)
	}
	result.Cursor = historyID

	logger.Info("notification processed",
		"previous_cursor", state.LastHistoryID,
		"stored", batch.Stored,
		"failed", batch.Failed)
	return result, nil
}

// changedMessages lists message ids added in (from, to]. When the mailbox no
// longer retains from, it returns the ids of the fallback window instead.
func (o *Orchestrator) changedMessages(ctx context.Context, from, to uint64) ([]string, bool, error) {
	var records []service.HistoryRecord
	err := o.retry(ctx, func() error {
		var diffErr error
		records, diffErr = o.mailbox.DiffHistory(ctx, from)
		return diffErr
	})

	if errors.Is(err, common.ErrHistoryExpired) {
		o.logger.Warn("history cursor expired, reprocessing recent window",
			"cursor", from,
			"days", o.cfg.FallbackDays)
		query := mailbox.BuildQuery(mailbox.QueryOptions{Days: o.cfg.FallbackDays, Now: o.now()})
		var ids []string
		err = o.retry(ctx, func() error {
			var listErr error
			ids, listErr = o.mailbox.ListMessageIDs(ctx, query, 0)
			return listErr
		})
		if err != nil {
			return nil, true, fmt.Errorf("failed to list fallback window: %w", err)
		}
		return ids, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to diff history: %w", err)
	}

	var ids []string
	for _, record := range records {
		if record.ID > to {
			continue
		}
		ids = append(ids, record.AddedMessageIDs...)
	}
	return uniqueIDs(ids), false, nil
}

func (o *Orchestrator) cursor(ctx context.Context) (model.SyncState, error) {
	var state model.SyncState
	err := o.retry(ctx, func() error {
		var getErr error
		state, getErr = o.storage.GetCursor(ctx)
		return getErr
	})
	if err != nil {
		return state, fmt.Errorf("failed to read cursor: %w", err)
	}
	return state, nil
}

// Poll reads the mailbox's current history id and handles it like a notification.
func (o *Orchestrator) Poll(ctx context.Context) (NotificationResult, error) {
	var historyID uint64
	err := o.retry(ctx, func() error {
		var idErr error
		historyID, idErr = o.mailbox.CurrentHistoryID(ctx)
		return idErr
	})
	if err != nil {
		return NotificationResult{}, fmt.Errorf("failed to read mailbox position: %w", err)
	}
	return o.HandleNotification(ctx, historyID)
}

// RenewWatch (re)registers push notifications and records the expiration. An
// uninitialized cursor starts at the watch's history id.
func (o *Orchestrator) RenewWatch(ctx context.Context, topic string, labels []string) (service.WatchResponse, error) {
	if topic == "" {
		return service.WatchResponse{}, fmt.Errorf("%w: watch topic", common.ErrMissingConfig)
	}

	var resp service.WatchResponse
	err := o.retry(ctx, func() error {
		var watchErr error
		resp, watchErr = o.mailbox.Watch(ctx, topic, labels)
		return watchErr
	})
	if err != nil {
		return resp, fmt.Errorf("failed to start watch: %w", err)
	}

	if err := o.storage.SetWatchExpiration(ctx, resp.Expiration); err != nil {
		return resp, fmt.Errorf("failed to store watch expiration: %w", err)
	}

	state, err := o.cursor(ctx)
	if err != nil {
		return resp, err
	}
	if !state.Initialized() && resp.HistoryID > 0 {
		if err := o.storage.SetCursor(ctx, resp.HistoryID, o.now()); err != nil {
			return resp, fmt.Errorf("failed to initialize cursor: %w", err)
		}
		o.logger.Info("sync cursor initialized from watch", "history_id", resp.HistoryID)
	}

	o.logger.Info("watch renewed", "expiration", resp.Expiration, "history_id", resp.HistoryID)
	return resp, nil
}
