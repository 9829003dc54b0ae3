package chartink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/chromedp/chromedp"

	"github.com/aristath/stockscan/internal/browser"
	"github.com/aristath/stockscan/internal/domain"
	"github.com/aristath/stockscan/internal/jobs"
)

const (
	chartFormSelector   = "#chart_form, form[name='technical_chart']"
	chartSelector       = "#chart_container, #ChartImage"
	chartRenderSelector = "#update_chart, input[value='Update Chart']"
	periodSelector      = "#ti, select[name='ti']"
	rangeSelector       = "#d, select[name='d']"

	// Sets a form field and fires change so the page's handlers pick it up
	setFieldScript = `((selector, value) => {
  const el = document.querySelector(selector);
  if (!el) return false;
  el.value = value;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})(%s, %s)`
)

// emaTypeSelector addresses the i-th moving average type select (1-based)
func emaTypeSelector(i int) string {
	return fmt.Sprintf("#a%d, select[name='a%d']", i, i)
}

func emaPeriodSelector(i int) string {
	return fmt.Sprintf("#a%dv, input[name='a%dv']", i, i)
}

func setField(selector, value string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var ok bool
		script := fmt.Sprintf(setFieldScript, strconv.Quote(selector), strconv.Quote(value))
		if err := chromedp.Evaluate(script, &ok).Do(ctx); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("form field %s not found", selector)
		}
		return nil
	})
}

// configureEMAs returns the actions that set the moving-average overlays
func configureEMAs(periods []int) []chromedp.Action {
	actions := make([]chromedp.Action, 0, 2*len(periods))
	for i, p := range periods {
		actions = append(actions,
			setField(emaTypeSelector(i+1), "EMA"),
			setField(emaPeriodSelector(i+1), strconv.Itoa(p)),
		)
	}
	return actions
}

// CaptureCharts screenshots every timeframe of one stock into the charts directory
func (a *Adapter) CaptureCharts(ctx context.Context, sess *browser.Session, stock domain.Stock, timeframes []domain.Timeframe, reporter jobs.Reporter) ([]string, error) {
	if err := os.MkdirAll(a.chartsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create charts directory: %w", err)
	}

	setup := []chromedp.Action{
		chromedp.Navigate(StockPageURL(stock.Code)),
		chromedp.WaitReady(chartFormSelector, chromedp.ByQuery),
	}
	setup = append(setup, configureEMAs(a.emas)...)
	if err := sess.Run(ctx, setup...); err != nil {
		return nil, fmt.Errorf("failed to prepare chart page for %s: %w", stock.Code, err)
	}

	paths := make([]string, 0, len(timeframes))
	for _, tf := range timeframes {
		if reporter.Cancelled() {
			break
		}

		var png []byte
		if err := sess.Run(ctx,
			setField(periodSelector, tf.Period),
			setField(rangeSelector, strconv.Itoa(tf.Range)),
			chromedp.Click(chartRenderSelector, chromedp.ByQuery),
			chromedp.WaitVisible(chartSelector, chromedp.ByQuery),
			chromedp.Sleep(a.settle),
			chromedp.ScrollIntoView(chartSelector, chromedp.ByQuery),
			chromedp.Screenshot(chartSelector, &png, chromedp.NodeVisible, chromedp.ByQuery),
		); err != nil {
			return nil, fmt.Errorf("failed to capture %s chart for %s: %w", tf.Name, stock.Code, err)
		}

		path := filepath.Join(a.chartsDir, domain.ChartFileName(stock.Code, tf.Name, tf.Range))
		if err := os.WriteFile(path, png, 0644); err != nil {
			return nil, fmt.Errorf("failed to write chart %s: %w", path, err)
		}
		paths = append(paths, path)
	}

	a.log.Debug().Str("code", stock.Code).Int("charts", len(paths)).Msg("Charts captured")
	return paths, nil
}
