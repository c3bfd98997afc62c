package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS emails (
					id TEXT PRIMARY KEY,
					message_id TEXT UNIQUE NOT NULL,
					from_address TEXT NOT NULL DEFAULT '',
					from_name TEXT NOT NULL DEFAULT '',
					subject TEXT NOT NULL DEFAULT '',
					received_at DATETIME NOT NULL,
					body_hash TEXT NOT NULL DEFAULT '',
					provider TEXT NOT NULL DEFAULT '',
					labels TEXT NOT NULL DEFAULT '[]',
					history_id INTEGER NOT NULL DEFAULT 0,
					parsed BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_emails_received_at ON emails(received_at)`,

				`CREATE TABLE IF NOT EXISTS merchants (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					normalized_name TEXT UNIQUE NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					transaction_count INTEGER NOT NULL DEFAULT 0,
					total_amount TEXT NOT NULL DEFAULT '0',
					created_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					email_id TEXT NOT NULL,
					merchant_id TEXT,
					idempotency_key TEXT UNIQUE NOT NULL,
					provider TEXT NOT NULL,
					kind TEXT NOT NULL,
					channel TEXT NOT NULL,
					amount TEXT NOT NULL,
					currency TEXT NOT NULL,
					merchant_name TEXT NOT NULL DEFAULT '',
					date TEXT NOT NULL,
					card_last4 TEXT NOT NULL DEFAULT '',
					reference TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					notes TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					FOREIGN KEY (email_id) REFERENCES emails(id),
					FOREIGN KEY (merchant_id) REFERENCES merchants(id)
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
				`CREATE INDEX idx_transactions_email ON transactions(email_id)`,
				`CREATE INDEX idx_transactions_merchant ON transactions(merchant_id)`,

				`CREATE TABLE IF NOT EXISTS sync_state (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					last_history_id INTEGER NOT NULL DEFAULT 0,
					last_synced_at DATETIME
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Track watch expiration on the sync cursor",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`ALTER TABLE sync_state ADD COLUMN watch_expiration DATETIME`)
			if err != nil {
				return fmt.Errorf("failed to add watch_expiration column: %w", err)
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add transaction timestamp and provider index",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE transactions ADD COLUMN timestamp DATETIME`,
				`CREATE INDEX IF NOT EXISTS idx_emails_provider ON emails(provider)`,
				`CREATE INDEX IF NOT EXISTS idx_emails_parsed ON emails(parsed)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// SchemaVersion returns the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
