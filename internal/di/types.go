// Package di wires the stockscan engine together.
package di

import (
	"github.com/aristath/stockscan/internal/archive"
	"github.com/aristath/stockscan/internal/browser"
	"github.com/aristath/stockscan/internal/database"
	"github.com/aristath/stockscan/internal/events"
	"github.com/aristath/stockscan/internal/jobs"
	"github.com/aristath/stockscan/internal/modules/charts"
	"github.com/aristath/stockscan/internal/modules/persistence"
	"github.com/aristath/stockscan/internal/modules/screening"
	"github.com/aristath/stockscan/internal/reliability"
	"github.com/aristath/stockscan/internal/scheduler"
	"github.com/aristath/stockscan/internal/scrapers"
	"github.com/aristath/stockscan/internal/services"
)

// Container holds every long-lived component of the engine
type Container struct {
	DB *database.DB

	EventBus     *events.Bus
	EventManager *events.Manager
	Registry     *jobs.Registry

	Browser  *browser.Manager
	Scrapers *scrapers.Registry

	Persister *persistence.Persister
	Screening *screening.Coordinator
	Charts    *charts.Coordinator
	Archiver  archive.Archiver
	Ingestion *services.IngestionService
	Scheduler *scheduler.Scheduler

	Maintenance *reliability.Maintenance
}

// Close stops background work and releases resources, in dependency order
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Shutdown()
	}
	if c.Ingestion != nil {
		c.Ingestion.Shutdown()
	}
	if c.Registry != nil {
		c.Registry.Close()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
