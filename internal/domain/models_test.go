package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChartFileName(t *testing.T) {
	assert.Equal(t, "RELIANCE_daily_121.png", ChartFileName("RELIANCE", "daily", 121))
	assert.Equal(t, "M_M_weekly_504.png", ChartFileName("M_M", "weekly", 504))
}

func TestParseChartFileName(t *testing.T) {
	tests := []struct {
		path      string
		code      string
		chartType string
		rng       string
		ok        bool
	}{
		{"/data/charts/RELIANCE_daily_121.png", "RELIANCE", "daily", "121", true},
		{"M_M_weekly_504.png", "M_M", "weekly", "504", true},
		{"500325_daily_121.png", "500325", "daily", "121", true},
		{"broken.png", "", "", "", false},
		{"_daily_121.png", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, chartType, rng, ok := ParseChartFileName(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.chartType, chartType)
			assert.Equal(t, tt.rng, rng)
		})
	}
}

func TestDefaultTimeframes(t *testing.T) {
	tfs := DefaultTimeframes()
	assert.Equal(t, []Timeframe{
		{Name: "daily", Period: "d", Range: 121},
		{Name: "weekly", Period: "w", Range: 504},
	}, tfs)
	assert.Equal(t, []int{10, 20, 50, 200}, DefaultEMAPeriods)
}

func TestChartResultOK(t *testing.T) {
	assert.False(t, ChartResult{}.OK())
	assert.True(t, ChartResult{DownloadedPaths: []string{"a.png"}}.OK())
}
