package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-spice-must-ingest/internal/cli"
	"github.com/Veraticus/the-spice-must-ingest/internal/ingest"
)

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill [message-id...]",
		Short: "Ingest historical notification emails",
		Long: `Search the mailbox for the trailing --days window and run every message
through the parsers. Message ids given as arguments are processed instead of
searching.

Already ingested messages are skipped, so a backfill can be re-run safely.`,
		RunE: runBackfill,
	}

	cmd.Flags().Int("days", 30, "how many days back to search")
	cmd.Flags().Int("max", 0, "stop after this many messages (0 = no limit)")
	cmd.Flags().String("label", "", "only search messages with this Gmail label")
	cmd.Flags().Bool("dry-run", false, "parse and report without writing anything")

	return cmd
}

func runBackfill(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	maxMessages, _ := cmd.Flags().GetInt("max")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{mailbox: true})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatTitle("Backfilling transactions"))

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr(), "spice "+strings.Join(os.Args[1:], " "))
	interrupts.Watch(ctx)
	defer interrupts.Stop()

	progress := cli.NewProgress(cmd.ErrOrStderr(), "Ingesting emails...")
	stats, err := a.orch.Backfill(ctx, ingest.BackfillOptions{
		Progress:    progress.Func(),
		Label:       labelFlag(cmd, a),
		IDs:         args,
		Days:        days,
		MaxMessages: maxMessages,
		DryRun:      dryRun,
	})
	progress.Finish()

	title := "Backfill complete"
	if dryRun {
		title = "Backfill dry run"
	}
	fmt.Fprintln(out, cli.RenderBatchSummary(title, stats, dryRun))
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	return nil
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the daily catch-up sync",
		Long: `Search from one day before the newest stored email (at least the default
lookback window, at most --max-lookback days) and ingest whatever the push
pipeline missed.`,
		RunE: runSync,
	}

	cmd.Flags().Int("max-lookback", 0, "cap on the lookback window in days (default from config)")
	cmd.Flags().Duration("delay", 0, "pause between messages (default 100ms)")
	cmd.Flags().String("label", "", "only search messages with this Gmail label")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	maxLookback, _ := cmd.Flags().GetInt("max-lookback")
	delay, _ := cmd.Flags().GetDuration("delay")

	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{mailbox: true})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatTitle("Daily sync"))

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr(), "spice sync")
	interrupts.Watch(ctx)
	defer interrupts.Stop()

	progress := cli.NewProgress(cmd.ErrOrStderr(), "Syncing emails...")
	result, err := a.orch.DailySync(ctx, ingest.DailySyncOptions{
		Progress:        progress.Func(),
		Label:           labelFlag(cmd, a),
		MaxLookbackDays: maxLookback,
		Delay:           delay,
	})
	progress.Finish()

	if result.Query != "" {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Searched %d days: %s", result.LookbackDays, result.Query)))
	}
	fmt.Fprintln(out, cli.RenderBatchSummary("Sync complete", result.Batch, false))
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <message-id>...",
		Short: "Ingest specific messages by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{mailbox: true})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			stats, err := a.orch.ProcessIDs(ctx, args, ingest.BatchOptions{
				Progress: func(_, _ int, id string, outcome ingest.Outcome) {
					fmt.Fprintf(out, "%s %s\n", id, cli.FormatOutcome(outcome))
				},
			})
			fmt.Fprintln(out, cli.RenderBatchSummary("Processed", stats, false))
			if err != nil {
				return fmt.Errorf("processing failed: %w", err)
			}
			return nil
		},
	}
}

func previewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <message-id>...",
		Short: "Show what messages would be stored as, without writing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{mailbox: true})
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range args {
				preview, err := a.orch.PreviewMessage(ctx, id)
				if err != nil {
					slog.Error("Failed to preview message", "message_id", id, "error", err)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderPreview(preview))
			}
			return nil
		},
	}
}

// labelFlag returns --label when given, else the configured gmail.label.
func labelFlag(cmd *cobra.Command, a *app) string {
	if cmd.Flags().Changed("label") {
		label, _ := cmd.Flags().GetString("label")
		return label
	}
	return a.cfg.Gmail.Label
}
