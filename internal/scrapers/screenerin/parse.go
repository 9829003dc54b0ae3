package screenerin

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aristath/stockscan/internal/domain"
)

const (
	baseURL = "https://www.screener.in"
	// PageSize is the number of rows screener.in renders per results page
	PageSize = 25
)

var (
	pageOfRe  = regexp.MustCompile(`(?i)page\s+\d+\s+of\s+(\d+)`)
	resultsRe = regexp.MustCompile(`(?i)(\d[\d,]*)\s+results?`)
)

// Page is one parsed results page
type Page struct {
	Rows       []domain.ScrapeResult
	TotalPages int
}

// ParsePage extracts result rows and the page count from a screen results page
func ParsePage(html, addedDate string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse results page: %w", err)
	}

	page := Page{TotalPages: TotalPages(doc.Find(".data-table-summary, .sub, [data-page-info]").Text())}

	doc.Find("table.data-table tr").Each(func(_ int, tr *goquery.Selection) {
		link := tr.Find(`a[href*="/company/"]`).First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		code := CodeFromHref(href)
		if code == "" {
			return
		}
		name := strings.Join(strings.Fields(link.Text()), " ")
		if name == "" {
			name = code
		}
		page.Rows = append(page.Rows, domain.ScrapeResult{
			Name:      name,
			Code:      code,
			URL:       resolve(href),
			AddedDate: addedDate,
		})
	})

	return page, nil
}

// TotalPages reads the page count from the results summary text. Unknown
// formats count as a single page.
func TotalPages(summary string) int {
	if m := pageOfRe.FindStringSubmatch(summary); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	if m := resultsRe.FindStringSubmatch(summary); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil && n > 0 {
			return (n + PageSize - 1) / PageSize
		}
	}
	return 1
}

// CodeFromHref turns "/company/TCS/consolidated/" into "TCS"
func CodeFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "company" && i+1 < len(parts) {
			return strings.ToUpper(parts[i+1])
		}
	}
	return ""
}

// PageURL returns screenURL with the page query parameter set
func PageURL(screenURL string, page int) (string, error) {
	u, err := url.Parse(screenURL)
	if err != nil {
		return "", fmt.Errorf("invalid screen url %q: %w", screenURL, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func resolve(href string) string {
	base, _ := url.Parse(baseURL)
	u, err := url.Parse(href)
	if err != nil {
		return baseURL + href
	}
	return base.ResolveReference(u).String()
}
