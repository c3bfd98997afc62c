package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-spice-must-ingest/internal/cli"
	"github.com/Veraticus/the-spice-must-ingest/internal/config"
	"github.com/Veraticus/the-spice-must-ingest/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the SQLite schema to the latest version.

Firestore needs no schema; the command only reports that for that backend.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "show the schema version without applying changes")
	cmd.Flags().Bool("backup", false, "copy the database into backups/ before migrating")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	statusOnly, _ := cmd.Flags().GetBool("status")
	backup, _ := cmd.Flags().GetBool("backup")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if cfg.Database.Backend == config.BackendFirestore {
		fmt.Fprintln(out, cli.FormatInfo("Firestore backend has no schema to migrate"))
		return nil
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if statusOnly {
		fmt.Fprintln(out, cli.RenderBox("🗄️  Database migration status", fmt.Sprintf(
			"%s%s\n%s%d\n%s%d",
			cli.LabelStyle.Render("Database:"), cfg.Database.Path,
			cli.LabelStyle.Render("Current version:"), current,
			cli.LabelStyle.Render("Latest version:"), storage.ExpectedSchemaVersion)))
		return nil
	}

	if current == storage.ExpectedSchemaVersion {
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Database already at version %d", current)))
		return nil
	}

	if backup && current > 0 {
		dest := store.BackupPath(time.Now())
		if err := store.Backup(ctx, dest); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Fprintln(out, cli.FormatInfo("Backup written to "+dest))
	}

	slog.Info("Running database migrations", "database", cfg.Database.Path, "from", current, "to", storage.ExpectedSchemaVersion)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Database migrated to version %d", storage.ExpectedSchemaVersion)))
	return nil
}
