package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/Veraticus/the-spice-must-ingest/internal/cli"
	"github.com/Veraticus/the-spice-must-ingest/internal/config"
	"github.com/Veraticus/the-spice-must-ingest/internal/mailbox"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with external services",
	}

	cmd.AddCommand(authGmailCmd())
	return cmd
}

func authGmailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gmail",
		Short: "Authorize read access to your Gmail account",
		Long: `Run the Google OAuth consent flow in your browser and cache the token.

This command will:
1. Start a local callback server
2. Print the consent URL for you to open
3. Exchange the returned code and save the token to gmail.token_file

Pass --modify when you also want to register push notifications with
'spice watch'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			modify, _ := cmd.Flags().GetBool("modify")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			oauthCfg := cfg.OAuth(modify)
			token, err := mailbox.AuthenticateInteractive(ctx, oauthCfg)
			if err != nil {
				return fmt.Errorf("gmail authentication failed: %w", err)
			}

			oauthConfig, err := mailbox.LoadOAuthConfig(oauthCfg)
			if err != nil {
				return err
			}
			client, err := mailbox.NewGmailClient(ctx, mailbox.GmailConfig{User: cfg.Gmail.User},
				option.WithTokenSource(oauthConfig.TokenSource(ctx, token)))
			if err != nil {
				return err
			}

			historyID, err := client.CurrentHistoryID(ctx)
			if err != nil {
				slog.Warn("Token saved but the mailbox could not be read", "error", err)
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Gmail authorized (mailbox at history %d), token saved to %s", historyID, cfg.Gmail.TokenFile)))
			return nil
		},
	}

	cmd.Flags().Bool("modify", false, "request the gmail.modify scope needed by 'spice watch'")
	return cmd
}
