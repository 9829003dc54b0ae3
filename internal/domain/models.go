// Package domain holds the models shared by scrapers, coordinators and storage.
package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Screener sources
const (
	SourceChartink   = "chartink"
	SourceScreenerIn = "screenerin"
)

// ScreenerConfig describes one saved screen on a source site
type ScreenerConfig struct {
	ID          int64  `json:"id"`
	ScanName    string `json:"scanName"`
	SourceName  string `json:"sourceName"`
	SourceURL   string `json:"sourceUrl"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"isActive"`
}

// ScrapeResult is one stock row scraped from a screener
type ScrapeResult struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	URL       string `json:"url"`
	AddedDate string `json:"addedDate"`
}

// BatchResult pairs a screener with the stocks it matched
type BatchResult struct {
	Screener ScreenerConfig `json:"screener"`
	Results  []ScrapeResult `json:"results"`
}

// Stock identifies a stock to capture charts for
type Stock struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
	URL  string `json:"url,omitempty"`
}

// Timeframe is one chart variant: bar period and number of bars
type Timeframe struct {
	Name   string `json:"name"`
	Period string `json:"period"`
	Range  int    `json:"range"`
}

// DefaultTimeframes are captured for every stock
func DefaultTimeframes() []Timeframe {
	return []Timeframe{
		{Name: "daily", Period: "d", Range: 121},
		{Name: "weekly", Period: "w", Range: 504},
	}
}

// DefaultEMAPeriods are the moving averages drawn on every chart
var DefaultEMAPeriods = []int{10, 20, 50, 200}

// ChartResult lists the files captured for a stock. Nil paths mean the
// capture failed.
type ChartResult struct {
	Stock           Stock    `json:"stock"`
	DownloadedPaths []string `json:"downloadedPaths"`
}

// OK reports whether any chart was captured
func (r ChartResult) OK() bool {
	return len(r.DownloadedPaths) > 0
}

// ChartFileName builds the screenshot file name for a stock and timeframe
func ChartFileName(code, timeframe string, bars int) string {
	return fmt.Sprintf("%s_%s_%d.png", code, timeframe, bars)
}

// ParseChartFileName splits a screenshot path back into code, chart type and
// range. Codes may themselves contain underscores.
func ParseChartFileName(path string) (code, chartType, chartRange string, ok bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return "", "", "", false
	}
	n := len(parts)
	code = strings.Join(parts[:n-2], "_")
	if code == "" || parts[n-2] == "" || parts[n-1] == "" {
		return "", "", "", false
	}
	return code, parts[n-2], parts[n-1], true
}
