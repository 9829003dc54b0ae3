package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/stockscan/internal/database"
	"github.com/aristath/stockscan/internal/domain"
)

// ListActiveScreeners returns every active screener ordered by id
func (p *Persister) ListActiveScreeners(ctx context.Context) ([]domain.ScreenerConfig, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, scan_name, source_name, source_url, description, is_active
		FROM screeners
		WHERE is_active = 1
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query screeners: %w", err)
	}
	defer rows.Close()

	var out []domain.ScreenerConfig
	for rows.Next() {
		var s domain.ScreenerConfig
		if err := rows.Scan(&s.ID, &s.ScanName, &s.SourceName, &s.SourceURL, &s.Description, &s.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan screener: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SeedScreeners inserts screeners that do not exist yet and returns how many were added.
// Existing rows are left untouched so edits made in the database survive restarts.
func (p *Persister) SeedScreeners(ctx context.Context, screeners []domain.ScreenerConfig) (int, error) {
	added := 0
	err := database.WithTransactionContext(ctx, p.db.Conn(), func(tx *sql.Tx) error {
		now := p.timestamp()
		for _, s := range screeners {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO screeners (scan_name, source_name, source_url, description, is_active, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				s.ScanName, s.SourceName, s.SourceURL, s.Description, s.IsActive, now, now)
			if err != nil {
				return fmt.Errorf("failed to seed screener %s: %w", s.ScanName, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// LatestScanDate returns the most recent scan date with matches, or "" when none
func (p *Persister) LatestScanDate(ctx context.Context) (string, error) {
	var date sql.NullString
	if err := p.db.QueryRowContext(ctx, `SELECT MAX(scan_date) FROM stock_screener_results`).Scan(&date); err != nil {
		return "", fmt.Errorf("failed to query latest scan date: %w", err)
	}
	return date.String, nil
}

// ListStocksForCharts returns the distinct stocks matched on scanDate.
// An empty scanDate selects the latest scan.
func (p *Persister) ListStocksForCharts(ctx context.Context, scanDate string) ([]domain.Stock, error) {
	if scanDate == "" {
		latest, err := p.LatestScanDate(ctx)
		if err != nil {
			return nil, err
		}
		if latest == "" {
			return nil, nil
		}
		scanDate = latest
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT s.id, s.name, COALESCE(s.nse_code, s.bse_code), s.url
		FROM stocks s
		JOIN stock_screener_results r ON r.stock_id = s.id
		WHERE r.scan_date = ? AND r.is_match = 1
		ORDER BY s.id`, scanDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks for %s: %w", scanDate, err)
	}
	defer rows.Close()

	var out []domain.Stock
	for rows.Next() {
		var s domain.Stock
		if err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.URL); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountMatches returns the number of matches recorded for scanDate
func (p *Persister) CountMatches(ctx context.Context, scanDate string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stock_screener_results WHERE scan_date = ?`, scanDate).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return n, nil
}

// CountCharts returns the number of chart rows stored for a stock
func (p *Persister) CountCharts(ctx context.Context, stockID int64) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stock_charts WHERE stock_id = ?`, stockID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count charts: %w", err)
	}
	return n, nil
}
