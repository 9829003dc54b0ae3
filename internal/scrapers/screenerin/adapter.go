// Package screenerin scrapes saved screens from screener.in, which requires a
// logged-in session and serves results one page per request.
package screenerin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/stockscan/internal/browser"
	"github.com/aristath/stockscan/internal/domain"
	"github.com/aristath/stockscan/internal/jobs"
	"github.com/aristath/stockscan/internal/scrapers"
)

// ErrMissingCredentials is returned when no login is configured
var ErrMissingCredentials = errors.New("screener.in credentials not configured")

const (
	loginURL         = baseURL + "/login/"
	usernameSelector = "#id_username"
	passwordSelector = "#id_password"
	submitSelector   = "button[type='submit']"
	resultsSelector  = "table.data-table"
)

// Credentials for the screener.in account
type Credentials struct {
	Username string
	Password string
}

// Adapter is the screener.in site adapter
type Adapter struct {
	browser   *browser.Manager
	creds     Credentials
	pageDelay time.Duration
	today     func() string
	log       zerolog.Logger
}

// New creates a screener.in adapter. pageDelay spaces out page requests.
func New(bm *browser.Manager, creds Credentials, pageDelay time.Duration, log zerolog.Logger) *Adapter {
	return &Adapter{
		browser:   bm,
		creds:     creds,
		pageDelay: pageDelay,
		today:     func() string { return time.Now().Format("2006-01-02") },
		log:       log.With().Str("component", "screenerin").Logger(),
	}
}

// Source implements scrapers.Scraper
func (a *Adapter) Source() string {
	return domain.SourceScreenerIn
}

// Scrape logs in and reads every page of a saved screen
func (a *Adapter) Scrape(ctx context.Context, cfg domain.ScreenerConfig, reporter jobs.Reporter) ([]domain.ScrapeResult, error) {
	if a.creds.Username == "" || a.creds.Password == "" {
		return nil, ErrMissingCredentials
	}

	sess, err := browser.Retry(ctx, a.browser.LaunchForScraping, 3, 2*time.Second)
	if err != nil {
		return nil, err
	}
	defer a.browser.Close(sess)

	if err := a.login(ctx, sess); err != nil {
		return nil, err
	}

	addedDate := a.today()
	first, err := a.readPage(ctx, sess, cfg.SourceURL, 1, addedDate)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cfg.ScanName, err)
	}

	total := first.TotalPages
	if total > scrapers.MaxPages {
		total = scrapers.MaxPages
	}
	rows := first.Rows
	reporter.Reportf("%s: page 1/%d, %d stocks", cfg.ScanName, total, len(first.Rows))

	limiter := rate.NewLimiter(rate.Every(a.pageDelay), 1)
	_ = limiter.Allow() // the first page already consumed the burst

	for page := 2; page <= total; page++ {
		if reporter.Cancelled() {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		p, err := a.readPage(ctx, sess, cfg.SourceURL, page, addedDate)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d of %s: %w", page, cfg.ScanName, err)
		}
		rows = append(rows, p.Rows...)
		reporter.Reportf("%s: page %d/%d, %d stocks", cfg.ScanName, page, total, len(p.Rows))
	}

	rows = scrapers.Dedupe(rows)
	a.log.Info().Str("screener", cfg.ScanName).Int("pages", total).Int("stocks", len(rows)).Msg("Screen scraped")
	return rows, nil
}

func (a *Adapter) login(ctx context.Context, sess *browser.Session) error {
	var location string
	err := sess.Run(ctx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(usernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(usernameSelector, a.creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(passwordSelector, a.creds.Password, chromedp.ByQuery),
		chromedp.Click(submitSelector, chromedp.ByQuery),
		chromedp.WaitNotPresent(passwordSelector, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return fmt.Errorf("failed to log in to screener.in: %w", err)
	}
	if strings.Contains(location, "/login") {
		return fmt.Errorf("screener.in rejected the login for %s", a.creds.Username)
	}
	a.log.Debug().Str("user", a.creds.Username).Msg("Logged in")
	return nil
}

func (a *Adapter) readPage(ctx context.Context, sess *browser.Session, screenURL string, page int, addedDate string) (Page, error) {
	target, err := PageURL(screenURL, page)
	if err != nil {
		return Page{}, err
	}

	var html string
	if err := sess.Run(ctx,
		chromedp.Navigate(target),
		chromedp.WaitReady(resultsSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return Page{}, err
	}
	return ParsePage(html, addedDate)
}
