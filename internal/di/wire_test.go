package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stockscan/internal/config"
	"github.com/aristath/stockscan/internal/scheduler"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	charts := filepath.Join(dir, "charts")
	require.NoError(t, os.MkdirAll(charts, 0o755))
	return &config.Config{
		DataDir:            dir,
		ChartsDir:          charts,
		Timezone:           "Asia/Kolkata",
		ChartMaxConcurrent: 2,
		JobRetention:       24 * time.Hour,
		Browser:            config.BrowserConfig{Headless: true, CallTimeout: time.Minute},
		ScreenerIn:         config.ScreenerInConfig{PageDelay: 2 * time.Second},
	}
}

// TestWire tests that the container is assembled with seeded screeners and inert schedules
func TestWire(t *testing.T) {
	fc := &config.FileConfig{
		Screeners: []config.ScreenerSeed{
			{ScanName: "breakouts", Source: "chartink", URL: "https://chartink.com/screener/breakouts"},
		},
	}

	c, err := Wire(context.Background(), testConfig(t), fc, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	screeners, err := c.Persister.ListActiveScreeners(context.Background())
	require.NoError(t, err)
	require.Len(t, screeners, 1)
	assert.Equal(t, "breakouts", screeners[0].ScanName)

	jobs := c.Scheduler.List()
	require.Len(t, jobs, 5)
	for _, job := range jobs {
		assert.False(t, job.IsActive, "%s must not start on boot", job.Name)
	}

	assert.ElementsMatch(t, []string{"chartink", "screenerin"}, c.Scrapers.Sources())
}

// TestWire_ScheduleOverrides tests that only schedules enabled in the overlay are started
func TestWire_ScheduleOverrides(t *testing.T) {
	enabled, disabled := true, false
	fc := &config.FileConfig{
		Schedules: []config.ScheduleConfig{
			{Name: scheduler.DailyScraping, Cron: "30 18 * * 1-5", Enabled: &enabled},
			{Name: scheduler.MarketHoursCharts, Enabled: &disabled},
			{Name: scheduler.WeekendFullRefresh, Cron: "0 11 * * 6"},
		},
	}

	c, err := Wire(context.Background(), testConfig(t), fc, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	byName := map[string]scheduler.ScheduledJob{}
	for _, job := range c.Scheduler.List() {
		byName[job.Name] = job
	}
	assert.True(t, byName[scheduler.DailyScraping].IsActive)
	assert.Equal(t, "30 18 * * 1-5", byName[scheduler.DailyScraping].CronExpression)
	assert.False(t, byName[scheduler.MarketHoursCharts].IsActive)
	assert.False(t, byName[scheduler.WeekendFullRefresh].IsActive, "a cron override alone does not start the task")
	assert.Equal(t, "0 11 * * 6", byName[scheduler.WeekendFullRefresh].CronExpression)
	assert.False(t, byName[scheduler.JobHistoryCleanup].IsActive)
	assert.False(t, byName[DatabaseMaintenance].IsActive)
}

// TestWire_BadOverride tests that an invalid cron override fails wiring
func TestWire_BadOverride(t *testing.T) {
	fc := &config.FileConfig{
		Schedules: []config.ScheduleConfig{{Name: scheduler.DailyScraping, Cron: "every day"}},
	}

	_, err := Wire(context.Background(), testConfig(t), fc, zerolog.Nop())
	assert.Error(t, err)
}
