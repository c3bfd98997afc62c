package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Veraticus/the-spice-must-ingest/internal/mailbox"
)

// BackfillOptions select messages for a manual re-run that bypasses the cursor.
type BackfillOptions struct {
	Progress ProgressFunc
	Label    string
	// IDs, when set, are processed instead of searching the mailbox.
	IDs         []string
	Days        int
	MaxMessages int
	DryRun      bool
}

// Backfill processes the messages of the trailing Days window (or the
// explicit IDs). The sync cursor is neither read nor written.
func (o *Orchestrator) Backfill(ctx context.Context, opts BackfillOptions) (BatchStats, error) {
	ids := opts.IDs
	if len(ids) == 0 {
		if opts.Days <= 0 {
			return BatchStats{}, fmt.Errorf("backfill needs a positive day count or explicit ids")
		}
		query := mailbox.BuildQuery(mailbox.QueryOptions{
			Days:  opts.Days,
			Label: opts.Label,
			Now:   o.now(),
		})

		var err error
		ids, err = o.list(ctx, query, opts.MaxMessages)
		if err != nil {
			return BatchStats{}, err
		}
		o.logger.Info("backfill window listed",
			"query", query,
			"messages", len(ids),
			"dry_run", opts.DryRun)
	} else if opts.MaxMessages > 0 && len(ids) > opts.MaxMessages {
		ids = ids[:opts.MaxMessages]
	}

	return o.ProcessIDs(ctx, ids, BatchOptions{
		DryRun:   opts.DryRun,
		Progress: opts.Progress,
	})
}

// DailySyncOptions tune DailySync.
type DailySyncOptions struct {
	Progress ProgressFunc
	Label    string
	// MaxLookbackDays overrides Config.MaxLookbackDays when positive.
	MaxLookbackDays int
	// Delay overrides the batch delay when positive.
	Delay time.Duration
}

// DailySyncResult reports the window DailySync chose and what it processed.
type DailySyncResult struct {
	Since        time.Time
	Query        string
	Batch        BatchStats
	LookbackDays int
}

// LookbackDays picks the daily sync window: one day past the newest stored
// email, at least the default window and at most maxDays.
func LookbackDays(latest time.Time, hasLatest bool, now time.Time, defaultDays, maxDays int) int {
	if !hasLatest {
		return defaultDays
	}
	since := int(math.Ceil(now.Sub(latest).Hours() / 24))
	if since > maxDays {
		return maxDays
	}
	days := since + 1
	if days < defaultDays {
		days = defaultDays
	}
	if days > maxDays {
		days = maxDays
	}
	return days
}

// DailySync catches up on everything since the newest stored email. It
// complements push notifications and does not touch the cursor.
func (o *Orchestrator) DailySync(ctx context.Context, opts DailySyncOptions) (DailySyncResult, error) {
	maxDays := o.cfg.MaxLookbackDays
	if opts.MaxLookbackDays > 0 {
		maxDays = opts.MaxLookbackDays
	}

	now := o.now()
	latest, ok, err := o.storage.LatestEmailTime(ctx)
	if err != nil {
		o.logger.Warn("failed to read newest email, using default window", "error", err)
		ok = false
	}

	days := LookbackDays(latest, ok, now, o.cfg.DefaultLookbackDays, maxDays)
	since := now.AddDate(0, 0, -days)
	query := mailbox.BuildQuery(mailbox.QueryOptions{After: since, Label: opts.Label})

	o.logger.Info("daily sync window",
		"latest_email", latest,
		"lookback_days", days,
		"query", query)

	result := DailySyncResult{Since: since, Query: query, LookbackDays: days}

	ids, err := o.list(ctx, query, 0)
	if err != nil {
		return result, err
	}

	delay := opts.Delay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	result.Batch, err = o.ProcessIDs(ctx, ids, BatchOptions{Delay: delay, Progress: opts.Progress})
	return result, err
}

func (o *Orchestrator) list(ctx context.Context, query string, maxResults int) ([]string, error) {
	var ids []string
	err := o.retry(ctx, func() error {
		var listErr error
		ids, listErr = o.mailbox.ListMessageIDs(ctx, query, maxResults)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return ids, nil
}
