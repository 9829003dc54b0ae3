// Package services runs scraping and chart-download jobs end to end.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/stockscan/internal/archive"
	"github.com/aristath/stockscan/internal/domain"
	"github.com/aristath/stockscan/internal/jobs"
	"github.com/aristath/stockscan/internal/modules/persistence"
)

// ErrNoScreeners is returned when a scrape is started with no active screeners
var ErrNoScreeners = errors.New("no active screeners configured")

// ScreenRunner scrapes a set of screeners
type ScreenRunner interface {
	ProcessMultipleScreeners(ctx context.Context, screeners []domain.ScreenerConfig, reporter jobs.Reporter) ([]domain.BatchResult, error)
}

// ChartRunner captures charts for a set of stocks
type ChartRunner interface {
	DownloadChartsForMultipleStocks(ctx context.Context, stocks []domain.Stock, maxConcurrent int, reporter jobs.Reporter) []domain.ChartResult
}

// Store is the persistence used by ingestion jobs
type Store interface {
	ListActiveScreeners(ctx context.Context) ([]domain.ScreenerConfig, error)
	UpsertScreenerResults(ctx context.Context, batch []domain.BatchResult, scanDate string) (persistence.Summary, error)
	ListStocksForCharts(ctx context.Context, scanDate string) ([]domain.Stock, error)
	UpsertChartMetadata(ctx context.Context, results []domain.ChartResult) (int, error)
}

// ScrapeResult is the result recorded on a completed scraping job
type ScrapeResult struct {
	Screeners   int    `json:"screeners"`
	TotalStocks int    `json:"totalStocks"`
	Matches     int    `json:"matches"`
	ScanDate    string `json:"scanDate"`
}

// ChartResult is the result recorded on a completed chart-download job
type ChartResult struct {
	TotalStocks int `json:"totalStocks"`
	Successful  int `json:"successful"`
	Failed      int `json:"failed"`
	Charts      int `json:"charts"`
	Archived    int `json:"archived,omitempty"`
}

// IngestionService starts jobs in the registry and runs them on goroutines
type IngestionService struct {
	registry *jobs.Registry
	screens  ScreenRunner
	charts   ChartRunner
	store    Store
	archiver archive.Archiver

	location             *time.Location
	defaultMaxConcurrent int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log zerolog.Logger
	now func() time.Time
}

// Options configures an IngestionService
type Options struct {
	Location             *time.Location
	DefaultMaxConcurrent int
	Archiver             archive.Archiver
}

// NewIngestionService creates the service. Jobs started through it are
// cancelled by Shutdown.
func NewIngestionService(registry *jobs.Registry, screens ScreenRunner, charts ChartRunner, store Store, opts Options, log zerolog.Logger) *IngestionService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Archiver == nil {
		opts.Archiver = archive.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IngestionService{
		registry:             registry,
		screens:              screens,
		charts:               charts,
		store:                store,
		archiver:             opts.Archiver,
		location:             opts.Location,
		defaultMaxConcurrent: opts.DefaultMaxConcurrent,
		ctx:                  ctx,
		cancel:               cancel,
		log:                  log.With().Str("service", "ingestion").Logger(),
		now:                  time.Now,
	}
}

// ScanDate returns today's date in the configured timezone
func (s *IngestionService) ScanDate() string {
	return s.now().In(s.location).Format("2006-01-02")
}

// StartScraping starts a scraping job and returns its id without waiting for it
func (s *IngestionService) StartScraping(ownerID string) (string, error) {
	id, err := s.registry.Start(jobs.JobTypeScraping, ownerID)
	if err != nil {
		return "", err
	}

	s.spawn(id, s.runScraping)
	return id, nil
}

// StartChartDownload starts a chart-download job for the stocks of the latest
// scan. maxConcurrent <= 0 uses the configured default.
func (s *IngestionService) StartChartDownload(ownerID string, maxConcurrent int) (string, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = s.defaultMaxConcurrent
	}

	id, err := s.registry.Start(jobs.JobTypeChartDownload, ownerID)
	if err != nil {
		return "", err
	}

	s.spawn(id, func(ctx context.Context, id string) (interface{}, error) {
		return s.runChartDownload(ctx, id, maxConcurrent)
	})
	return id, nil
}

// Wait blocks until every spawned job has returned
func (s *IngestionService) Wait() {
	s.wg.Wait()
}

// Shutdown cancels running work and waits for it to return
func (s *IngestionService) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

func (s *IngestionService) spawn(id string, run func(ctx context.Context, id string) (interface{}, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Str("job_id", id).Interface("panic", rec).Msg("Job panicked")
				s.registry.Fail(id, fmt.Errorf("job panicked: %v", rec))
			}
		}()

		result, err := run(s.ctx, id)
		switch {
		case s.registry.IsCancelled(id):
			s.log.Info().Str("job_id", id).Msg("Job cancelled, result discarded")
		case err != nil:
			s.registry.Fail(id, err)
		default:
			s.registry.Complete(id, result)
		}
	}()
}

func (s *IngestionService) runScraping(ctx context.Context, id string) (interface{}, error) {
	reporter := s.registry.Reporter(id)

	screeners, err := s.store.ListActiveScreeners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load screeners: %w", err)
	}
	if len(screeners) == 0 {
		return nil, ErrNoScreeners
	}
	reporter.Reportf("Scraping %d screeners", len(screeners))

	batch, err := s.screens.ProcessMultipleScreeners(ctx, screeners, reporter)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape screeners: %w", err)
	}
	if reporter.Cancelled() {
		return nil, nil
	}

	scanDate := s.ScanDate()
	reporter.Reportf("Saving results of %d screeners", len(batch))
	summary, err := s.store.UpsertScreenerResults(ctx, batch, scanDate)
	if err != nil {
		return nil, fmt.Errorf("failed to persist screener results: %w", err)
	}

	return ScrapeResult{
		Screeners:   summary.Screeners,
		TotalStocks: summary.Stocks,
		Matches:     summary.Matches,
		ScanDate:    scanDate,
	}, nil
}

func (s *IngestionService) runChartDownload(ctx context.Context, id string, maxConcurrent int) (interface{}, error) {
	reporter := s.registry.Reporter(id)

	stocks, err := s.store.ListStocksForCharts(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load stocks: %w", err)
	}
	reporter.Reportf("Downloading charts for %d stocks", len(stocks))

	results := s.charts.DownloadChartsForMultipleStocks(ctx, stocks, maxConcurrent, reporter)
	if reporter.Cancelled() {
		return nil, nil
	}

	out := ChartResult{TotalStocks: len(stocks)}
	for _, r := range results {
		if r.OK() {
			out.Successful++
		} else {
			out.Failed++
		}
	}

	out.Charts, err = s.store.UpsertChartMetadata(ctx, results)
	if err != nil {
		return nil, fmt.Errorf("failed to persist chart metadata: %w", err)
	}

	archived, err := s.archiver.Archive(ctx, s.ScanDate(), results)
	if err != nil {
		s.log.Warn().Err(err).Str("job_id", id).Msg("Chart archive incomplete")
	}
	out.Archived = archived

	return out, nil
}
