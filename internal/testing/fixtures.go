package testing

import (
	"fmt"

	"github.com/aristath/stockscan/internal/domain"
)

// ChartinkScreener returns an active chartink screener config
func ChartinkScreener(name string) domain.ScreenerConfig {
	return domain.ScreenerConfig{
		ScanName:   name,
		SourceName: domain.SourceChartink,
		SourceURL:  "https://chartink.com/screener/" + name,
		IsActive:   true,
	}
}

// ScreenerInScreener returns an active screener.in screener config
func ScreenerInScreener(name string) domain.ScreenerConfig {
	return domain.ScreenerConfig{
		ScanName:   name,
		SourceName: domain.SourceScreenerIn,
		SourceURL:  "https://www.screener.in/screens/1/" + name + "/",
		IsActive:   true,
	}
}

// ScrapeRows builds n rows with codes prefix0..prefixN-1
func ScrapeRows(prefix string, n int, addedDate string) []domain.ScrapeResult {
	rows := make([]domain.ScrapeResult, n)
	for i := range rows {
		code := fmt.Sprintf("%s%d", prefix, i)
		rows[i] = domain.ScrapeResult{
			Name:      fmt.Sprintf("%s Limited", code),
			Code:      code,
			URL:       "https://chartink.com/stocks/" + code + ".html",
			AddedDate: addedDate,
		}
	}
	return rows
}
