package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrBackupExists is returned when the backup destination is already taken.
var ErrBackupExists = errors.New("backup already exists")

// BackupPath returns the default backup location next to the database.
func (s *SQLiteStorage) BackupPath(now time.Time) string {
	return filepath.Join(filepath.Dir(s.dbPath), "backups",
		fmt.Sprintf("%s-%s.db", strings.TrimSuffix(filepath.Base(s.dbPath), filepath.Ext(s.dbPath)), now.Format("20060102-150405")))
}

// Backup writes a consistent copy of the database to destPath with VACUUM INTO.
func (s *SQLiteStorage) Backup(ctx context.Context, destPath string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(destPath, "destPath"); err != nil {
		return err
	}

	// VACUUM INTO takes a literal; reject anything that could break out of the quotes.
	if strings.ContainsAny(destPath, "'\";") {
		return fmt.Errorf("invalid backup path: contains forbidden characters")
	}
	destPath, err := filepath.Abs(destPath)
	if err != nil {
		return fmt.Errorf("failed to resolve backup path: %w", err)
	}

	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("%w: %s", ErrBackupExists, destPath)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}

	// #nosec G201 - destPath is validated above
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}
	return nil
}
