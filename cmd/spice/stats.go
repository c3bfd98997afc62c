package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-spice-must-ingest/internal/cli"
	"github.com/Veraticus/the-spice-must-ingest/internal/parser"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ingestion counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.storage.GetStats(ctx)
			if err != nil {
				return fmt.Errorf("failed to load stats: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderStats(stats))
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "print machine-readable JSON")
	return cmd
}

func parsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parsers",
		Short: "List provider parsers in precedence order",
		Run: func(cmd *cobra.Command, _ []string) {
			ids := parser.NewDefaultRegistry(nil, nil).ListParsers()
			fmt.Fprintf(cmd.OutOrStdout(), "%s, then %s fallback\n", strings.Join(ids, ", "), parser.FallbackID)
		},
	}
}
