// Package charts captures chart screenshots for batches of stocks using a
// bounded number of browser sessions.
package charts

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/stockscan/internal/browser"
	"github.com/aristath/stockscan/internal/domain"
	"github.com/aristath/stockscan/internal/jobs"
)

const (
	// DefaultMaxConcurrent is the default number of parallel browser sessions
	DefaultMaxConcurrent = 2
	// MaxConcurrentLimit caps parallel sessions regardless of the request
	MaxConcurrentLimit = 8
	// DefaultCaptureAttempts bounds retries of one stock's capture
	DefaultCaptureAttempts = 5
)

// Launcher provides browser sessions
type Launcher interface {
	Launch(ctx context.Context) (*browser.Session, error)
	Close(s *browser.Session)
}

// Capturer screenshots one stock's charts inside an open session
type Capturer interface {
	CaptureCharts(ctx context.Context, sess *browser.Session, stock domain.Stock, timeframes []domain.Timeframe, reporter jobs.Reporter) ([]string, error)
}

// Coordinator splits stocks into chunks, one browser session per chunk
type Coordinator struct {
	launcher       Launcher
	capturer       Capturer
	timeframes     []domain.Timeframe
	attempts       int
	retryDelay     time.Duration
	launchAttempts int
	log            zerolog.Logger
}

// NewCoordinator creates a chart download coordinator
func NewCoordinator(launcher Launcher, capturer Capturer, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		launcher:       launcher,
		capturer:       capturer,
		timeframes:     domain.DefaultTimeframes(),
		attempts:       DefaultCaptureAttempts,
		retryDelay:     2 * time.Second,
		launchAttempts: 3,
		log:            log.With().Str("component", "chart_coordinator").Logger(),
	}
}

// SetRetry overrides capture attempts and the linear backoff base
func (c *Coordinator) SetRetry(attempts int, delay time.Duration) {
	c.attempts = attempts
	c.retryDelay = delay
}

// SetTimeframes overrides the captured timeframes
func (c *Coordinator) SetTimeframes(tfs []domain.Timeframe) {
	c.timeframes = tfs
}

// Chunk splits items into contiguous groups of size; the last may be shorter
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// ClampConcurrency bounds a requested session count to [1, MaxConcurrentLimit]
func ClampConcurrency(n int) int {
	if n <= 0 {
		return DefaultMaxConcurrent
	}
	if n > MaxConcurrentLimit {
		return MaxConcurrentLimit
	}
	return n
}

// DownloadChartsForMultipleStocks captures charts for every stock. The result
// has one entry per input stock in input order; failed stocks carry no paths.
func (c *Coordinator) DownloadChartsForMultipleStocks(ctx context.Context, stocks []domain.Stock, maxConcurrent int, reporter jobs.Reporter) []domain.ChartResult {
	results := make([]domain.ChartResult, len(stocks))
	for i, s := range stocks {
		results[i].Stock = s
	}
	if len(stocks) == 0 {
		return results
	}

	size := ClampConcurrency(maxConcurrent)
	chunks := Chunk(stocks, size)
	reporter.Reportf("Capturing charts for %d stocks in %d chunks", len(stocks), len(chunks))

	// Chunk size and session count share the same bound
	var done int64
	var g errgroup.Group
	g.SetLimit(size)
	for ci, chunk := range chunks {
		ci, chunk := ci, chunk
		offset := ci * size
		g.Go(func() error {
			c.runChunk(ctx, ci, chunk, results[offset:offset+len(chunk)], reporter, &done, len(stocks))
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runChunk captures one chunk sequentially inside a single session and
// writes into out, which aliases the chunk's slots in the shared result slice
func (c *Coordinator) runChunk(ctx context.Context, index int, chunk []domain.Stock, out []domain.ChartResult, reporter jobs.Reporter, done *int64, total int) {
	log := c.log.With().Int("chunk", index).Logger()

	sess, err := browser.Retry(ctx, c.launcher.Launch, c.launchAttempts, c.retryDelay)
	if err != nil {
		log.Error().Err(err).Int("stocks", len(chunk)).Msg("Failed to launch browser for chunk")
		reporter.Reportf("Chunk %d: browser launch failed, %d stocks skipped", index+1, len(chunk))
		return
	}
	defer c.launcher.Close(sess)

	for i, stock := range chunk {
		if reporter.Cancelled() || ctx.Err() != nil {
			return
		}

		paths, err := browser.Retry(ctx, func(ctx context.Context) ([]string, error) {
			return c.capturer.CaptureCharts(ctx, sess, stock, c.timeframes, reporter)
		}, c.attempts, c.retryDelay)

		n := atomic.AddInt64(done, 1)
		if err != nil {
			log.Warn().Err(err).Str("code", stock.Code).Msg("Chart capture failed")
			reporter.Reportf("Charts %d/%d: %s failed", n, total, stock.Code)
			continue
		}

		out[i].DownloadedPaths = paths
		reporter.Reportf("Charts %d/%d: %s (%d files)", n, total, stock.Code, len(paths))
	}
}
