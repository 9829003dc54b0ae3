package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/stockscan/internal/archive"
	"github.com/aristath/stockscan/internal/browser"
	"github.com/aristath/stockscan/internal/config"
	"github.com/aristath/stockscan/internal/database"
	"github.com/aristath/stockscan/internal/domain"
	"github.com/aristath/stockscan/internal/events"
	"github.com/aristath/stockscan/internal/jobs"
	"github.com/aristath/stockscan/internal/modules/charts"
	"github.com/aristath/stockscan/internal/modules/persistence"
	"github.com/aristath/stockscan/internal/modules/screening"
	"github.com/aristath/stockscan/internal/reliability"
	"github.com/aristath/stockscan/internal/scheduler"
	"github.com/aristath/stockscan/internal/scrapers"
	"github.com/aristath/stockscan/internal/scrapers/chartink"
	"github.com/aristath/stockscan/internal/scrapers/screenerin"
	"github.com/aristath/stockscan/internal/services"
)

// DatabaseMaintenance is the nightly maintenance task name
const DatabaseMaintenance = "database-maintenance"

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Open and migrate the database, seed screeners
// 2. Create the event bus and job registry
// 3. Create browser, adapters and coordinators
// 4. Create the ingestion service and register schedules
func Wire(ctx context.Context, cfg *config.Config, fc *config.FileConfig, log zerolog.Logger) (*Container, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileStandard,
		Name:    "stocks",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	c := &Container{DB: db}
	c.Persister = persistence.New(db, log)

	if seeds := screenerSeeds(fc); len(seeds) > 0 {
		added, err := c.Persister.SeedScreeners(ctx, seeds)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to seed screeners: %w", err)
		}
		log.Info().Int("added", added).Int("configured", len(seeds)).Msg("Screeners seeded")
	}

	c.EventBus = events.NewBus(log)
	c.EventManager = events.NewManager(c.EventBus, log)
	c.Registry = jobs.NewRegistry(c.EventManager, log)

	c.Browser = browser.NewManager(browser.Options{
		ExecPath:    cfg.Browser.ExecPath,
		Headless:    cfg.Browser.Headless,
		UserAgent:   cfg.Browser.UserAgent,
		CallTimeout: cfg.Browser.CallTimeout,
	}, log)

	chartinkAdapter := chartink.New(c.Browser, cfg.ChartsDir, log)
	screenerinAdapter := screenerin.New(c.Browser, screenerin.Credentials{
		Username: cfg.ScreenerIn.Username,
		Password: cfg.ScreenerIn.Password,
	}, cfg.ScreenerIn.PageDelay, log)
	c.Scrapers = scrapers.NewRegistry(chartinkAdapter, screenerinAdapter)

	c.Screening = screening.NewCoordinator(c.Scrapers, log)
	c.Charts = charts.NewCoordinator(c.Browser, chartinkAdapter, log)

	c.Archiver, err = archive.New(ctx, cfg.Archive, log)
	if err != nil {
		c.Registry.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create chart archive: %w", err)
	}

	c.Ingestion = services.NewIngestionService(c.Registry, c.Screening, c.Charts, c.Persister, services.Options{
		Location:             loc,
		DefaultMaxConcurrent: cfg.ChartMaxConcurrent,
		Archiver:             c.Archiver,
	}, log)

	c.Scheduler = scheduler.New(loc, log)
	defs := scheduler.DefaultSchedules(scheduler.Deps{
		Bus:       c.EventBus,
		Starter:   c.Ingestion,
		Registry:  c.Registry,
		Retention: cfg.JobRetention,
		Log:       log,
	})
	c.Maintenance = reliability.NewMaintenance(db, cfg.DataDir, log)
	defs = append(defs, scheduler.Definition{
		Name:        DatabaseMaintenance,
		Cron:        "0 2 * * *",
		Description: "Check database integrity, checkpoint the WAL and verify free disk space",
		Trigger:     c.Maintenance.Trigger,
	})
	if err := c.Scheduler.RegisterAll(defs); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to register schedules: %w", err)
	}
	if err := ApplySchedules(c.Scheduler, fc, log); err != nil {
		c.Close()
		return nil, err
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return c, nil
}

// ApplySchedules applies YAML overrides. Tasks stay inert until the overlay
// sets enabled: true for them, or they are started over the API.
func ApplySchedules(s *scheduler.Scheduler, fc *config.FileConfig, log zerolog.Logger) error {
	if fc == nil {
		return nil
	}
	for _, job := range s.List() {
		override, ok := fc.Schedule(job.Name)
		if !ok {
			continue
		}
		if override.Cron != "" {
			if err := s.Reschedule(job.Name, override.Cron); err != nil {
				return fmt.Errorf("failed to apply schedule override: %w", err)
			}
		}
		if override.Enabled != nil && *override.Enabled {
			s.Start(job.Name)
			log.Info().Str("job", job.Name).Msg("Scheduled job enabled by config")
		}
	}
	return nil
}

func screenerSeeds(fc *config.FileConfig) []domain.ScreenerConfig {
	if fc == nil {
		return nil
	}
	out := make([]domain.ScreenerConfig, 0, len(fc.Screeners))
	for _, s := range fc.Screeners {
		out = append(out, domain.ScreenerConfig{
			ScanName:    s.ScanName,
			SourceName:  s.Source,
			SourceURL:   s.URL,
			Description: s.Description,
			IsActive:    true,
		})
	}
	return out
}
