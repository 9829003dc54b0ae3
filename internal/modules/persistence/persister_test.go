package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stockscan/internal/domain"
	testhelpers "github.com/aristath/stockscan/internal/testing"
)

func newTestPersister(t *testing.T) *Persister {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t, "stocks")
	t.Cleanup(cleanup)
	return New(db, zerolog.Nop())
}

func sampleBatch() []domain.BatchResult {
	return []domain.BatchResult{
		{Screener: testhelpers.ChartinkScreener("breakouts"), Results: testhelpers.ScrapeRows("BRK", 5, "2026-10-14")},
		{Screener: testhelpers.ScreenerInScreener("value"), Results: testhelpers.ScrapeRows("VAL", 3, "2026-10-14")},
	}
}

// TestUpsertScreenerResults tests that a batch creates screeners, stocks and matches
func TestUpsertScreenerResults(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()

	summary, err := p.UpsertScreenerResults(ctx, sampleBatch(), "2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Screeners)
	assert.Equal(t, 8, summary.Stocks)
	assert.Equal(t, 8, summary.Matches)
	assert.Zero(t, summary.Errors)

	count, err := p.CountMatches(ctx, "2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	screeners, err := p.ListActiveScreeners(ctx)
	require.NoError(t, err)
	require.Len(t, screeners, 2)
	assert.Equal(t, "breakouts", screeners[0].ScanName)
	assert.Equal(t, domain.SourceScreenerIn, screeners[1].SourceName)
}

// TestUpsertScreenerResults_Idempotent tests that persisting the same batch twice leaves one copy
func TestUpsertScreenerResults_Idempotent(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()

	_, err := p.UpsertScreenerResults(ctx, sampleBatch(), "2026-10-14")
	require.NoError(t, err)
	_, err = p.UpsertScreenerResults(ctx, sampleBatch(), "2026-10-14")
	require.NoError(t, err)

	count, err := p.CountMatches(ctx, "2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	var stocks int
	require.NoError(t, p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stocks`).Scan(&stocks))
	assert.Equal(t, 8, stocks)
}

// TestUpsertScreenerResults_SharedStock tests that a stock matched by two screeners is stored once
func TestUpsertScreenerResults_SharedStock(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()

	row := domain.ScrapeResult{Name: "Reliance Industries", Code: "RELIANCE", URL: "https://chartink.com/stocks/RELIANCE.html"}
	batch := []domain.BatchResult{
		{Screener: testhelpers.ChartinkScreener("a"), Results: []domain.ScrapeResult{row}},
		{Screener: testhelpers.ChartinkScreener("b"), Results: []domain.ScrapeResult{row}},
	}

	summary, err := p.UpsertScreenerResults(ctx, batch, "2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Stocks)
	assert.Equal(t, 2, summary.Matches)

	stocks, err := p.ListStocksForCharts(ctx, "")
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, "RELIANCE", stocks[0].Code)
}

// TestUpsertScreenerResults_BSECode tests that numeric codes are stored as BSE codes
func TestUpsertScreenerResults_BSECode(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()

	batch := []domain.BatchResult{{
		Screener: testhelpers.ScreenerInScreener("value"),
		Results:  []domain.ScrapeResult{{Name: "Infosys", Code: "500209"}, {Name: "TCS", Code: "TCS"}},
	}}
	_, err := p.UpsertScreenerResults(ctx, batch, "2026-10-14")
	require.NoError(t, err)

	var bse int
	require.NoError(t, p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stocks WHERE bse_code = '500209' AND nse_code IS NULL`).Scan(&bse))
	assert.Equal(t, 1, bse)

	var nse int
	require.NoError(t, p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stocks WHERE nse_code = 'TCS' AND bse_code IS NULL`).Scan(&nse))
	assert.Equal(t, 1, nse)
}

// TestUpsertScreenerResults_EmptyCode tests that a row without a code is counted as an error
func TestUpsertScreenerResults_EmptyCode(t *testing.T) {
	p := newTestPersister(t)

	batch := []domain.BatchResult{{
		Screener: testhelpers.ChartinkScreener("a"),
		Results:  []domain.ScrapeResult{{Name: "No code"}, {Name: "Good", Code: "GOOD"}},
	}}
	summary, err := p.UpsertScreenerResults(context.Background(), batch, "2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Matches)
}

// TestListStocksForCharts_LatestDate tests that an empty date selects the latest scan
func TestListStocksForCharts_LatestDate(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()

	old := []domain.BatchResult{{Screener: testhelpers.ChartinkScreener("a"), Results: testhelpers.ScrapeRows("OLD", 2, "")}}
	latest := []domain.BatchResult{{Screener: testhelpers.ChartinkScreener("a"), Results: testhelpers.ScrapeRows("NEW", 3, "")}}
	_, err := p.UpsertScreenerResults(ctx, old, "2026-10-13")
	require.NoError(t, err)
	_, err = p.UpsertScreenerResults(ctx, latest, "2026-10-14")
	require.NoError(t, err)

	stocks, err := p.ListStocksForCharts(ctx, "")
	require.NoError(t, err)
	require.Len(t, stocks, 3)
	assert.Equal(t, "NEW0", stocks[0].Code)

	stocks, err = p.ListStocksForCharts(ctx, "2026-10-13")
	require.NoError(t, err)
	assert.Len(t, stocks, 2)
}

// TestListStocksForCharts_Empty tests that an empty database yields no stocks
func TestListStocksForCharts_Empty(t *testing.T) {
	p := newTestPersister(t)

	stocks, err := p.ListStocksForCharts(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, stocks)
}

// TestUpsertChartMetadata tests that chart rows are replaced per stock
func TestUpsertChartMetadata(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()

	_, err := p.UpsertScreenerResults(ctx, []domain.BatchResult{{
		Screener: testhelpers.ChartinkScreener("a"),
		Results:  testhelpers.ScrapeRows("CHT", 1, ""),
	}}, "2026-10-14")
	require.NoError(t, err)

	stocks, err := p.ListStocksForCharts(ctx, "")
	require.NoError(t, err)
	require.Len(t, stocks, 1)

	dir := t.TempDir()
	daily := filepath.Join(dir, domain.ChartFileName("CHT0", "d", 121))
	require.NoError(t, os.WriteFile(daily, []byte("png"), 0o644))
	weekly := filepath.Join(dir, domain.ChartFileName("CHT0", "w", 504))

	results := []domain.ChartResult{
		{Stock: stocks[0], DownloadedPaths: []string{daily, weekly}},
		{Stock: domain.Stock{Code: "FAILED"}},
	}

	n, err := p.UpsertChartMetadata(ctx, results)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = p.UpsertChartMetadata(ctx, results)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := p.CountCharts(ctx, stocks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var size int64
	require.NoError(t, p.db.QueryRowContext(ctx, `SELECT file_size FROM stock_charts WHERE chart_type = 'd'`).Scan(&size))
	assert.Equal(t, int64(3), size)

	var missing *int64
	require.NoError(t, p.db.QueryRowContext(ctx, `SELECT file_size FROM stock_charts WHERE chart_type = 'w'`).Scan(&missing))
	assert.Nil(t, missing)
}

// TestUpsertChartMetadata_LookupByCode tests that a stock without an id is resolved by code
func TestUpsertChartMetadata_LookupByCode(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()

	_, err := p.UpsertScreenerResults(ctx, []domain.BatchResult{{
		Screener: testhelpers.ChartinkScreener("a"),
		Results:  testhelpers.ScrapeRows("LKP", 1, ""),
	}}, "2026-10-14")
	require.NoError(t, err)

	n, err := p.UpsertChartMetadata(ctx, []domain.ChartResult{{
		Stock:           domain.Stock{Code: "LKP0"},
		DownloadedPaths: []string{"/charts/LKP0_d_121.png"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.UpsertChartMetadata(ctx, []domain.ChartResult{{
		Stock:           domain.Stock{Code: "UNKNOWN"},
		DownloadedPaths: []string{"/charts/UNKNOWN_d_121.png"},
	}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestSeedScreeners tests that seeding inserts only missing screeners
func TestSeedScreeners(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()

	seeds := []domain.ScreenerConfig{testhelpers.ChartinkScreener("a"), testhelpers.ScreenerInScreener("b")}
	added, err := p.SeedScreeners(ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = p.SeedScreeners(ctx, seeds)
	require.NoError(t, err)
	assert.Zero(t, added)
}

// TestIsBSECode tests code classification
func TestIsBSECode(t *testing.T) {
	assert.True(t, IsBSECode("500209"))
	assert.False(t, IsBSECode("TCS"))
	assert.False(t, IsBSECode("M&M"))
	assert.False(t, IsBSECode(""))
}
