// Package persistence writes scrape and chart results to the stocks database.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/stockscan/internal/database"
	"github.com/aristath/stockscan/internal/domain"
)

// Summary describes one screener-results upsert
type Summary struct {
	ScanDate  string `json:"scanDate"`
	Screeners int    `json:"screeners"`
	Stocks    int    `json:"stocks"`
	Matches   int    `json:"matches"`
	Errors    int    `json:"errors"`
}

// Persister stores screener matches and chart metadata
type Persister struct {
	db  *database.DB
	log zerolog.Logger
	now func() time.Time
}

// New creates a persister over the stocks database
func New(db *database.DB, log zerolog.Logger) *Persister {
	return &Persister{
		db:  db,
		log: log.With().Str("component", "persister").Logger(),
		now: time.Now,
	}
}

func (p *Persister) timestamp() string {
	return p.now().UTC().Format(time.RFC3339)
}

// UpsertScreenerResults replaces every match recorded for scanDate with batch.
// Screeners and stocks are created on first sight. A stock that cannot be
// written is logged and counted, the rest of the batch still lands.
func (p *Persister) UpsertScreenerResults(ctx context.Context, batch []domain.BatchResult, scanDate string) (Summary, error) {
	summary := Summary{ScanDate: scanDate}
	seenStocks := make(map[int64]struct{})

	err := database.WithTransactionContext(ctx, p.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM stock_screener_results WHERE scan_date = ?`, scanDate); err != nil {
			return fmt.Errorf("failed to clear matches for %s: %w", scanDate, err)
		}

		for _, br := range batch {
			screenerID, err := p.ensureScreener(ctx, tx, br.Screener)
			if err != nil {
				return err
			}
			summary.Screeners++

			for _, row := range br.Results {
				stockID, err := p.findOrCreateStock(ctx, tx, row)
				if err != nil {
					summary.Errors++
					p.log.Error().Err(err).Str("code", row.Code).Str("screener", br.Screener.ScanName).Msg("Failed to store stock")
					continue
				}
				seenStocks[stockID] = struct{}{}

				res, err := tx.ExecContext(ctx, `
					INSERT OR IGNORE INTO stock_screener_results (stock_id, screener_id, scan_date, is_match, created_at)
					VALUES (?, ?, ?, 1, ?)`, stockID, screenerID, scanDate, p.timestamp())
				if err != nil {
					summary.Errors++
					p.log.Error().Err(err).Str("code", row.Code).Str("screener", br.Screener.ScanName).Msg("Failed to store match")
					continue
				}
				if n, _ := res.RowsAffected(); n > 0 {
					summary.Matches++
				}
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	summary.Stocks = len(seenStocks)
	p.log.Info().
		Str("scan_date", scanDate).
		Int("screeners", summary.Screeners).
		Int("stocks", summary.Stocks).
		Int("matches", summary.Matches).
		Int("errors", summary.Errors).
		Msg("Screener results stored")
	return summary, nil
}

// ensureScreener returns the id of the screener named cfg.ScanName, creating it if absent
func (p *Persister) ensureScreener(ctx context.Context, tx *sql.Tx, cfg domain.ScreenerConfig) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM screeners WHERE scan_name = ?`, cfg.ScanName).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up screener %s: %w", cfg.ScanName, err)
	}

	now := p.timestamp()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO screeners (scan_name, source_name, source_url, description, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)`,
		cfg.ScanName, cfg.SourceName, cfg.SourceURL, cfg.Description, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create screener %s: %w", cfg.ScanName, err)
	}
	return res.LastInsertId()
}

// findOrCreateStock resolves a scraped row to a stock id by exchange code
func (p *Persister) findOrCreateStock(ctx context.Context, tx *sql.Tx, row domain.ScrapeResult) (int64, error) {
	if row.Code == "" {
		return 0, errors.New("stock code is empty")
	}

	now := p.timestamp()
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM stocks WHERE nse_code = ? OR bse_code = ? LIMIT 1`, row.Code, row.Code).Scan(&id)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE stocks
			SET name = COALESCE(NULLIF(?, ''), name), url = COALESCE(NULLIF(?, ''), url), last_updated = ?
			WHERE id = ?`, row.Name, row.URL, now, id)
		if err != nil {
			return 0, fmt.Errorf("failed to update stock %s: %w", row.Code, err)
		}
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("failed to look up stock %s: %w", row.Code, err)
	}

	var nse, bse interface{}
	if IsBSECode(row.Code) {
		bse = row.Code
	} else {
		nse = row.Code
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO stocks (name, nse_code, bse_code, url, last_updated)
		VALUES (?, ?, ?, ?, ?)`, row.Name, nse, bse, row.URL, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create stock %s: %w", row.Code, err)
	}
	return res.LastInsertId()
}

// IsBSECode reports whether code is a numeric BSE scrip code
func IsBSECode(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// UpsertChartMetadata replaces the chart rows of every stock that has new
// screenshots and returns how many chart rows were written
func (p *Persister) UpsertChartMetadata(ctx context.Context, results []domain.ChartResult) (int, error) {
	written := 0

	err := database.WithTransactionContext(ctx, p.db.Conn(), func(tx *sql.Tx) error {
		for _, r := range results {
			if !r.OK() {
				continue
			}

			stockID := r.Stock.ID
			if stockID == 0 {
				err := tx.QueryRowContext(ctx, `SELECT id FROM stocks WHERE nse_code = ? OR bse_code = ? LIMIT 1`, r.Stock.Code, r.Stock.Code).Scan(&stockID)
				if err != nil {
					p.log.Warn().Err(err).Str("code", r.Stock.Code).Msg("Charts for unknown stock skipped")
					continue
				}
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM stock_charts WHERE stock_id = ?`, stockID); err != nil {
				return fmt.Errorf("failed to clear charts for %s: %w", r.Stock.Code, err)
			}

			for _, path := range r.DownloadedPaths {
				_, chartType, chartRange, ok := domain.ParseChartFileName(path)
				if !ok {
					p.log.Warn().Str("path", path).Msg("Unrecognised chart file name")
					continue
				}

				var size interface{}
				if info, err := os.Stat(path); err == nil {
					size = info.Size()
				}

				if _, err := tx.ExecContext(ctx, `
					INSERT INTO stock_charts (stock_id, chart_type, chart_range, file_path, file_size, created_at)
					VALUES (?, ?, ?, ?, ?, ?)`, stockID, chartType, chartRange, path, size, p.timestamp()); err != nil {
					return fmt.Errorf("failed to store chart %s: %w", path, err)
				}
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.log.Info().Int("charts", written).Msg("Chart metadata stored")
	return written, nil
}
