package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STOCKSCAN_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "charts"), cfg.ChartsDir)
	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "Asia/Kolkata", cfg.Timezone)
	assert.Equal(t, 2, cfg.ChartMaxConcurrent)
	assert.Equal(t, 24*time.Hour, cfg.JobRetention)
	assert.Equal(t, 60*time.Second, cfg.Browser.CallTimeout)
	assert.True(t, cfg.Browser.Headless)
	assert.DirExists(t, cfg.ChartsDir)
	assert.Equal(t, filepath.Join(dir, "stocks.db"), cfg.DatabasePath())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STOCKSCAN_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("CHART_MAX_CONCURRENT", "4")
	t.Setenv("BROWSER_CALL_TIMEOUT", "30s")
	t.Setenv("SCREENERIN_USERNAME", "alice")
	t.Setenv("SCREENERIN_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 4, cfg.ChartMaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.Browser.CallTimeout)
	assert.Equal(t, "alice", cfg.ScreenerIn.Username)
	assert.Equal(t, "secret", cfg.ScreenerIn.Password)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Timezone:           "UTC",
			ChartMaxConcurrent: 2,
			Browser:            BrowserConfig{CallTimeout: time.Minute},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("bad timezone", func(t *testing.T) {
		cfg := base()
		cfg.Timezone = "Mars/Olympus"
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero concurrency", func(t *testing.T) {
		cfg := base()
		cfg.ChartMaxConcurrent = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("archive without bucket", func(t *testing.T) {
		cfg := base()
		cfg.Archive.Enabled = true
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("missing path yields empty overlay", func(t *testing.T) {
		fc, err := LoadFile(filepath.Join(t.TempDir(), "absent.yml"))
		require.NoError(t, err)
		assert.Empty(t, fc.Schedules)
	})

	t.Run("parses schedules and screeners", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stockscan.yml")
		content := `
timezone: UTC
schedules:
  - name: daily-scraping
    cron: "30 17 * * 1-5"
    enabled: true
screeners:
  - scan_name: breakout
    source: chartink
    url: https://chartink.com/screener/breakout
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		fc, err := LoadFile(path)
		require.NoError(t, err)

		s, ok := fc.Schedule("daily-scraping")
		require.True(t, ok)
		assert.Equal(t, "30 17 * * 1-5", s.Cron)
		require.NotNil(t, s.Enabled)
		assert.True(t, *s.Enabled)

		_, ok = fc.Schedule("unknown")
		assert.False(t, ok)

		require.Len(t, fc.Screeners, 1)
		assert.Equal(t, "chartink", fc.Screeners[0].Source)
	})

	t.Run("rejects unknown source", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yml")
		content := "screeners:\n  - scan_name: x\n    source: tradingview\n    url: https://example.com\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		_, err := LoadFile(path)
		assert.Error(t, err)
	})
}
