// Package scrapers defines the site adapter contract and resolves adapters
// by source name.
package scrapers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/stockscan/internal/domain"
	"github.com/aristath/stockscan/internal/jobs"
)

// ErrUnknownSource is returned when no adapter serves a screener's source
var ErrUnknownSource = errors.New("unknown screener source")

// MaxPages bounds every pagination loop
const MaxPages = 100

// Scraper pulls the current matches of one screener from its source site.
// Implementations poll reporter.Cancelled between pages.
type Scraper interface {
	Source() string
	Scrape(ctx context.Context, cfg domain.ScreenerConfig, reporter jobs.Reporter) ([]domain.ScrapeResult, error)
}

// Registry maps source names to adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Scraper
}

// NewRegistry creates a registry holding adapters
func NewRegistry(adapters ...Scraper) *Registry {
	r := &Registry{adapters: make(map[string]Scraper)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its source
func (r *Registry) Register(s Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[s.Source()] = s
}

// Get returns the adapter for source
func (r *Registry) Get(source string) (Scraper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.adapters[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return s, nil
}

// Sources lists registered source names
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dedupe drops rows whose code was already seen, keeping first occurrence
func Dedupe(rows []domain.ScrapeResult) []domain.ScrapeResult {
	seen := make(map[string]struct{}, len(rows))
	out := make([]domain.ScrapeResult, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.Code]; dup {
			continue
		}
		seen[row.Code] = struct{}{}
		out = append(out, row)
	}
	return out
}
