package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/stockscan/internal/events"
	"github.com/aristath/stockscan/internal/jobs"
)

// JobStarter starts ingestion jobs
type JobStarter interface {
	StartScraping(ownerID string) (string, error)
	StartChartDownload(ownerID string, maxConcurrent int) (string, error)
}

// ScrapeTrigger starts a scraping job
func ScrapeTrigger(starter JobStarter, owner string) TriggerFunc {
	return func() (string, error) {
		return starter.StartScraping(owner)
	}
}

// ChartTrigger starts a chart-download job with the default concurrency
func ChartTrigger(starter JobStarter, owner string) TriggerFunc {
	return func() (string, error) {
		return starter.StartChartDownload(owner, 0)
	}
}

// ChainedTrigger starts a scraping job and, once a scraping job completes,
// a chart download. Failed or cancelled scrapes do not chain.
//
// Terminal events are matched on job type rather than id: the one-running
// scrape rule keeps the wrong job from being picked up.
func ChainedTrigger(bus *events.Bus, starter JobStarter, owner string, log zerolog.Logger) TriggerFunc {
	log = log.With().Str("component", "job_chain").Logger()

	return func() (string, error) {
		var (
			once sync.Once
			ids  []events.SubscriptionID
			mu   sync.Mutex
		)
		detach := func() {
			once.Do(func() {
				mu.Lock()
				defer mu.Unlock()
				for _, id := range ids {
					bus.Unsubscribe(id)
				}
			})
		}

		handler := func(e *events.Event) {
			data := e.JobData()
			if data == nil || data.JobType != string(jobs.JobTypeScraping) {
				return
			}
			detach()

			if e.Type != events.JobCompleted {
				log.Info().Str("job_id", data.JobID).Str("status", data.Status).Msg("Scrape did not complete, charts not chained")
				return
			}

			chartID, err := starter.StartChartDownload(owner, 0)
			if err != nil {
				log.Warn().Err(err).Str("scrape_job_id", data.JobID).Msg("Failed to chain chart download")
				return
			}
			log.Info().Str("scrape_job_id", data.JobID).Str("chart_job_id", chartID).Msg("Chart download chained")
		}

		mu.Lock()
		for _, t := range []events.EventType{events.JobCompleted, events.JobFailed, events.JobCancelled} {
			ids = append(ids, bus.Subscribe(t, handler))
		}
		mu.Unlock()

		id, err := starter.StartScraping(owner)
		if err != nil {
			detach()
			return "", err
		}
		return id, nil
	}
}

// CleanupTrigger prunes finished jobs older than retention
func CleanupTrigger(registry *jobs.Registry, retention time.Duration, log zerolog.Logger) TriggerFunc {
	return func() (string, error) {
		removed := registry.Cleanup(retention)
		log.Debug().Int("removed", removed).Msg("Job history pruned")
		return "", nil
	}
}
