// Package chartink scrapes paginated chartink screener results and captures
// technical charts from chartink stock pages.
package chartink

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/aristath/stockscan/internal/browser"
	"github.com/aristath/stockscan/internal/domain"
	"github.com/aristath/stockscan/internal/jobs"
	"github.com/aristath/stockscan/internal/scrapers"
)

const (
	resultsTableSelector = "table.scan_results_table, table#DataTables_Table_0"
	nextButtonSelector   = ".paginate_button.next, #DataTables_Table_0_next"

	// Picks the largest page-length option, "All" when offered
	showAllScript = `(() => {
  const sel = document.querySelector('select[name$="_length"], .dataTables_length select');
  if (!sel) return false;
  const values = Array.from(sel.options).map(o => o.value);
  const best = values.includes('-1') ? '-1' : values.reduce((a, b) => Number(b) > Number(a) ? b : a);
  sel.value = best;
  sel.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`

	hasNextScript = `(() => {
  const el = document.querySelector('.paginate_button.next, #DataTables_Table_0_next');
  return !!el && !el.classList.contains('disabled') && el.getAttribute('aria-disabled') !== 'true';
})()`
)

// Adapter is the chartink site adapter
type Adapter struct {
	browser   *browser.Manager
	chartsDir string
	emas      []int
	settle    time.Duration
	maxPages  int
	today     func() string
	log       zerolog.Logger
}

// New creates a chartink adapter writing screenshots under chartsDir
func New(bm *browser.Manager, chartsDir string, log zerolog.Logger) *Adapter {
	return &Adapter{
		browser:   bm,
		chartsDir: chartsDir,
		emas:      domain.DefaultEMAPeriods,
		settle:    time.Second,
		maxPages:  scrapers.MaxPages,
		today:     func() string { return time.Now().Format("2006-01-02") },
		log:       log.With().Str("component", "chartink").Logger(),
	}
}

// Source implements scrapers.Scraper
func (a *Adapter) Source() string {
	return domain.SourceChartink
}

// Scrape walks every results page of a chartink screener
func (a *Adapter) Scrape(ctx context.Context, cfg domain.ScreenerConfig, reporter jobs.Reporter) ([]domain.ScrapeResult, error) {
	sess, err := browser.Retry(ctx, a.browser.LaunchForScraping, 3, 2*time.Second)
	if err != nil {
		return nil, err
	}
	defer a.browser.Close(sess)

	if err := sess.Run(ctx,
		chromedp.Navigate(cfg.SourceURL),
		chromedp.WaitVisible(resultsTableSelector, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to open screener %s: %w", cfg.ScanName, err)
	}

	var revealed bool
	if err := sess.Run(ctx, chromedp.Evaluate(showAllScript, &revealed), chromedp.Sleep(a.settle)); err != nil || !revealed {
		a.log.Warn().Err(err).Str("screener", cfg.ScanName).Msg("Show-all toggle unavailable, paging through results")
	}

	addedDate := a.today()
	var rows []domain.ScrapeResult
	for page := 1; page <= a.maxPages; page++ {
		if reporter.Cancelled() {
			break
		}

		var html string
		if err := sess.Run(ctx, chromedp.OuterHTML(resultsTableSelector, &html, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("failed to read results page %d of %s: %w", page, cfg.ScanName, err)
		}

		pageRows, err := ParseResultsTable(html, addedDate)
		if err != nil {
			return nil, err
		}
		rows = append(rows, pageRows...)
		reporter.Reportf("%s: page %d, %d stocks", cfg.ScanName, page, len(pageRows))

		var hasNext bool
		if err := sess.Run(ctx, chromedp.Evaluate(hasNextScript, &hasNext)); err != nil || !hasNext {
			break
		}
		if err := sess.Run(ctx,
			chromedp.Click(nextButtonSelector, chromedp.ByQuery),
			chromedp.Sleep(a.settle),
		); err != nil {
			return nil, fmt.Errorf("failed to advance to page %d of %s: %w", page+1, cfg.ScanName, err)
		}
	}

	rows = scrapers.Dedupe(rows)
	a.log.Info().Str("screener", cfg.ScanName).Int("stocks", len(rows)).Msg("Screener scraped")
	return rows, nil
}
