package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
)

// BatchStats counts per-message outcomes of one run.
type BatchStats struct {
	Errors     map[string]error
	Total      int
	Processed  int
	Stored     int
	Duplicates int
	Unparsed   int
	Failed     int
	Duration   time.Duration
}

func (s *BatchStats) record(id string, outcome Outcome, err error) {
	switch outcome {
	case OutcomeStored:
		s.Stored++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeUnparsed:
		s.Unparsed++
	}
	if err != nil || outcome == OutcomeFailed {
		s.Failed++
		if s.Errors == nil {
			s.Errors = make(map[string]error)
		}
		s.Errors[id] = err
		return
	}
	s.Processed++
}

// ProgressFunc observes each message as a batch completes it.
type ProgressFunc func(done, total int, messageID string, outcome Outcome)

// BatchOptions tune one ProcessIDs call.
type BatchOptions struct {
	Progress ProgressFunc
	// Delay overrides Config.Delay when positive.
	Delay time.Duration
	// DryRun parses without writing.
	DryRun bool
}

// ProcessIDs runs ids sequentially through the per-message pipeline. Duplicate
// ids are processed once. Per-message failures are counted and skipped; a
// fatal error aborts the batch and is returned with the stats so far.
func (o *Orchestrator) ProcessIDs(ctx context.Context, ids []string, opts BatchOptions) (BatchStats, error) {
	start := time.Now()
	ids = uniqueIDs(ids)
	stats := BatchStats{Total: len(ids)}

	delay := o.cfg.Delay
	if opts.Delay > 0 {
		delay = opts.Delay
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		var (
			outcome Outcome
			err     error
		)
		if opts.DryRun {
			outcome, err = o.dryRun(ctx, id)
		} else {
			outcome, err = o.ProcessMessage(ctx, id)
		}
		stats.record(id, outcome, err)

		if opts.Progress != nil {
			opts.Progress(i+1, len(ids), id, outcome)
		}

		if err != nil && common.IsFatal(err) {
			stats.Duration = time.Since(start)
			o.logger.Error("aborting batch on fatal error",
				"message_id", id,
				"error", err)
			return stats, fmt.Errorf("batch aborted at message %s: %w", id, err)
		}

		if delay > 0 && i < len(ids)-1 {
			select {
			case <-ctx.Done():
				stats.Duration = time.Since(start)
				return stats, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	stats.Duration = time.Since(start)
	o.logger.Info("batch complete",
		"total", stats.Total,
		"stored", stats.Stored,
		"duplicates", stats.Duplicates,
		"unparsed", stats.Unparsed,
		"failed", stats.Failed,
		"duration", stats.Duration)
	return stats, nil
}

func (o *Orchestrator) dryRun(ctx context.Context, id string) (Outcome, error) {
	p, err := o.PreviewMessage(ctx, id)
	if err != nil {
		return OutcomeFailed, err
	}
	if p.Transaction == nil {
		o.logger.Info("dry run: no transaction", "message_id", id, "subject", p.Subject)
		return OutcomeUnparsed, nil
	}
	o.logger.Info("dry run: parsed transaction",
		"message_id", id,
		"provider", p.Provider,
		"kind", p.Transaction.Kind,
		"amount", p.Transaction.Amount.String(),
		"merchant", p.Transaction.Merchant,
		"date", p.Transaction.Date.Format(time.RFC3339))
	return OutcomeStored, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
