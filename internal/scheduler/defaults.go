package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/stockscan/internal/events"
	"github.com/aristath/stockscan/internal/jobs"
)

// Default task names
const (
	DailyScraping      = "daily-scraping"
	MarketHoursCharts  = "market-hours-charts"
	WeekendFullRefresh = "weekend-full-refresh"
	JobHistoryCleanup  = "job-history-cleanup"
)

// Definition is a task ready to register
type Definition struct {
	Name        string
	Cron        string
	Description string
	Trigger     TriggerFunc
}

// Deps are the services default tasks act on
type Deps struct {
	Bus       *events.Bus
	Starter   JobStarter
	Registry  *jobs.Registry
	Retention time.Duration
	Log       zerolog.Logger
}

// DefaultSchedules returns the built-in tasks
func DefaultSchedules(d Deps) []Definition {
	return []Definition{
		{
			Name:        DailyScraping,
			Cron:        "0 18 * * 1-5",
			Description: "Scrape all screeners after market close, then download charts",
			Trigger:     ChainedTrigger(d.Bus, d.Starter, "scheduler:"+DailyScraping, d.Log),
		},
		{
			Name:        MarketHoursCharts,
			Cron:        "*/30 9-15 * * 1-5",
			Description: "Refresh charts for the latest scan every 30 minutes during market hours",
			Trigger:     ChartTrigger(d.Starter, "scheduler:"+MarketHoursCharts),
		},
		{
			Name:        WeekendFullRefresh,
			Cron:        "0 10 * * 6",
			Description: "Saturday full scrape followed by a chart refresh",
			Trigger:     ChainedTrigger(d.Bus, d.Starter, "scheduler:"+WeekendFullRefresh, d.Log),
		},
		{
			Name:        JobHistoryCleanup,
			Cron:        "0 * * * *",
			Description: fmt.Sprintf("Remove finished jobs older than %s", d.Retention),
			Trigger:     CleanupTrigger(d.Registry, d.Retention, d.Log),
		},
	}
}

// RegisterAll registers every definition
func (s *Scheduler) RegisterAll(defs []Definition) error {
	for _, def := range defs {
		if err := s.Register(def.Name, def.Cron, def.Description, def.Trigger); err != nil {
			return err
		}
	}
	return nil
}
