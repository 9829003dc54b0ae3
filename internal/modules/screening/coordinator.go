// Package screening fans a batch of screeners out to their site adapters.
package screening

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/stockscan/internal/domain"
	"github.com/aristath/stockscan/internal/jobs"
	"github.com/aristath/stockscan/internal/scrapers"
)

const (
	// DefaultAuthStagger spaces out screeners on the logged-in source
	DefaultAuthStagger = 5 * time.Second
	// DefaultStagger spaces out screeners on public sources
	DefaultStagger = 1500 * time.Millisecond
)

// Resolver finds the adapter for a source
type Resolver interface {
	Get(source string) (scrapers.Scraper, error)
}

// Coordinator runs many screeners concurrently with per-source staggering
type Coordinator struct {
	resolver    Resolver
	authStagger time.Duration
	stagger     time.Duration
	log         zerolog.Logger
}

// NewCoordinator creates a scrape coordinator
func NewCoordinator(resolver Resolver, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		resolver:    resolver,
		authStagger: DefaultAuthStagger,
		stagger:     DefaultStagger,
		log:         log.With().Str("component", "scrape_coordinator").Logger(),
	}
}

// SetStagger overrides the per-index start delays
func (c *Coordinator) SetStagger(auth, other time.Duration) {
	c.authStagger = auth
	c.stagger = other
}

// StaggerDelay is the start offset of the screener at index for source
func StaggerDelay(index int, source string, auth, other time.Duration) time.Duration {
	if source == domain.SourceScreenerIn {
		return time.Duration(index) * auth
	}
	return time.Duration(index) * other
}

// ProcessMultipleScreeners scrapes every screener and returns the ones that
// produced rows, in input order. A failing screener is logged and skipped.
func (c *Coordinator) ProcessMultipleScreeners(ctx context.Context, screeners []domain.ScreenerConfig, reporter jobs.Reporter) ([]domain.BatchResult, error) {
	slots := make([]*domain.BatchResult, len(screeners))

	var g errgroup.Group
	for i, cfg := range screeners {
		i, cfg := i, cfg
		g.Go(func() error {
			delay := StaggerDelay(i, cfg.SourceName, c.authStagger, c.stagger)
			if !sleep(ctx, delay) || reporter.Cancelled() {
				return nil
			}
			slots[i] = c.scrapeOne(ctx, cfg, reporter)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]domain.BatchResult, 0, len(screeners))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, ctx.Err()
}

func (c *Coordinator) scrapeOne(ctx context.Context, cfg domain.ScreenerConfig, reporter jobs.Reporter) *domain.BatchResult {
	log := c.log.With().Str("screener", cfg.ScanName).Str("source", cfg.SourceName).Logger()

	adapter, err := c.resolver.Get(cfg.SourceName)
	if err != nil {
		log.Error().Err(err).Msg("No adapter for screener source")
		reporter.Reportf("Skipped %s: %v", cfg.ScanName, err)
		return nil
	}

	reporter.Reportf("Scraping %s (%s)", cfg.ScanName, cfg.SourceName)
	start := time.Now()

	rows, err := adapter.Scrape(ctx, cfg, reporter)
	if err != nil {
		log.Error().Err(err).Msg("Screener scrape failed")
		reporter.Reportf("Failed %s: %v", cfg.ScanName, err)
		return nil
	}
	if len(rows) == 0 {
		log.Info().Msg("Screener returned no stocks")
		reporter.Reportf("%s returned no stocks", cfg.ScanName)
		return nil
	}

	log.Info().Int("stocks", len(rows)).Dur("duration", time.Since(start)).Msg("Screener scraped")
	reporter.Reportf("%s: %d stocks", cfg.ScanName, len(rows))
	return &domain.BatchResult{Screener: cfg, Results: rows}
}

// sleep waits d or until ctx is done; it reports whether d elapsed
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
