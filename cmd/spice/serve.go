package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-spice-must-ingest/internal/cli"
	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/ingest"
	"github.com/Veraticus/the-spice-must-ingest/internal/notify"
	"github.com/Veraticus/the-spice-must-ingest/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Pub/Sub push endpoint",
		Long: `Start an HTTP server that accepts Gmail notifications pushed by Pub/Sub on
POST /pubsub/push, manual runs on POST /trigger/:messageId, and exposes
/health and /monitoring.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{mailbox: true})
			if err != nil {
				return err
			}
			defer a.Close()

			addr := a.cfg.Server.Addr
			if cmd.Flags().Changed("addr") {
				addr, _ = cmd.Flags().GetString("addr")
			}

			srv := server.New(a.orch, a.storage, server.Config{
				Logger:    a.logger,
				Addr:      addr,
				PushToken: a.cfg.Server.PushToken,
			})
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default from config, :8080)")
	return cmd
}

func subscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Pull Gmail notifications from a Pub/Sub subscription",
		Long: `Receive Gmail push notifications from a Pub/Sub pull subscription and run
each one through the history pipeline, one at a time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{mailbox: true})
			if err != nil {
				return err
			}
			defer a.Close()

			email, _ := cmd.Flags().GetString("email")
			sub, err := notify.NewSubscriber(ctx, notify.SubscriberConfig{
				Logger:       a.logger,
				ProjectID:    a.cfg.PubSub.ProjectID,
				Subscription: a.cfg.PubSub.Subscription,
				EmailAddress: email,
			}, a.orch)
			if err != nil {
				return err
			}
			defer func() { _ = sub.Close() }()

			slog.Info("Listening for mailbox notifications", "subscription", a.cfg.PubSub.Subscription)
			return sub.Run(ctx)
		},
	}

	cmd.Flags().String("subscription", "", "Pub/Sub subscription id")
	cmd.Flags().String("email", "", "ignore notifications for other mailboxes")
	_ = viper.BindPFlag("pubsub.subscription", cmd.Flags().Lookup("subscription"))
	return cmd
}

func pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Process mailbox changes since the stored cursor",
		Long: `Read the mailbox's current history id and run it through the same pipeline
push notifications use. With --interval the poll repeats until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")

			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{mailbox: true})
			if err != nil {
				return err
			}
			defer a.Close()

			return pollLoop(ctx, a.orch, interval, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Duration("interval", 0, "repeat every interval (0 = poll once)")
	return cmd
}

// poller is the part of the orchestrator pollLoop drives.
type poller interface {
	Poll(ctx context.Context) (ingest.NotificationResult, error)
}

func pollLoop(ctx context.Context, p poller, interval time.Duration, out io.Writer) error {
	for {
		result, err := p.Poll(ctx)
		if err != nil {
			if interval == 0 || common.IsFatal(err) {
				return fmt.Errorf("poll failed: %w", err)
			}
			slog.Error("Poll failed", "error", err)
		} else {
			fmt.Fprintln(out, describeNotification(result))
		}

		if interval == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func describeNotification(r ingest.NotificationResult) string {
	switch {
	case r.Initialized:
		return cli.FormatInfo(fmt.Sprintf("Cursor initialized at %d", r.Cursor))
	case r.Stale:
		return cli.FormatInfo(fmt.Sprintf("Up to date at %d", r.PreviousCursor))
	}
	msg := fmt.Sprintf("Cursor %d → %d: %d processed, %d stored, %d duplicates, %d unparsed, %d failed",
		r.PreviousCursor, r.Cursor, r.Batch.Processed, r.Batch.Stored, r.Batch.Duplicates, r.Batch.Unparsed, r.Batch.Failed)
	if r.Expired {
		msg += " (history expired, fell back to recent window)"
	}
	return cli.FormatSuccess(msg)
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Register or renew the Gmail push subscription",
		Long: `Call Gmail users.watch so new mail is announced on the configured Pub/Sub
topic. Watches lapse after seven days; run this daily from cron.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			labels, _ := cmd.Flags().GetStringSlice("labels")

			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{mailbox: true, modify: true})
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.orch.RenewWatch(ctx, a.cfg.Gmail.Topic, labels)
			if err != nil {
				return fmt.Errorf("watch failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Watching %s at history %d until %s",
				a.cfg.Gmail.Topic, resp.HistoryID, resp.Expiration.Format(time.RFC3339))))
			return nil
		},
	}

	cmd.Flags().String("topic", "", "Pub/Sub topic (projects/<p>/topics/<t>)")
	cmd.Flags().StringSlice("labels", []string{"INBOX"}, "label ids to watch")
	_ = viper.BindPFlag("gmail.topic", cmd.Flags().Lookup("topic"))
	return cmd
}
