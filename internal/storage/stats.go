package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

// GetStats summarizes the ingested data for monitoring.
func (s *SQLiteStorage) GetStats(ctx context.Context) (*model.Stats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	stats := &model.Stats{EmailsByProvider: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN parsed THEN 1 ELSE 0 END), 0) FROM emails
	`).Scan(&stats.TotalEmails, &stats.ParsedEmails)
	if err != nil {
		return nil, fmt.Errorf("failed to count emails: %w", err)
	}
	stats.UnparsedEmails = stats.TotalEmails - stats.ParsedEmails

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&stats.TotalTransactions); err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM merchants`).Scan(&stats.TotalMerchants); err != nil {
		return nil, fmt.Errorf("failed to count merchants: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT provider, COUNT(*) FROM emails GROUP BY provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to count emails by provider: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			provider string
			count    int
		)
		if err := rows.Scan(&provider, &count); err != nil {
			return nil, fmt.Errorf("failed to scan provider count: %w", err)
		}
		if provider == "" {
			provider = "unknown"
		}
		stats.EmailsByProvider[provider] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate provider counts: %w", err)
	}

	latest, ok, err := s.LatestEmailTime(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		stats.LatestEmail = &latest
	}

	return stats, nil
}
