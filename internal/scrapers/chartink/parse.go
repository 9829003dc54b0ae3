package chartink

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aristath/stockscan/internal/domain"
)

const baseURL = "https://chartink.com"

// ParseResultsTable extracts stock rows from the screener results table HTML
func ParseResultsTable(html, addedDate string) ([]domain.ScrapeResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse results table: %w", err)
	}

	var rows []domain.ScrapeResult
	doc.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 3 {
			// "No data" placeholder rows span the table
			return
		}

		link := tr.Find(`a[href*="/stocks/"]`).First()
		href, _ := link.Attr("href")

		name := cleanText(cells.Eq(1).Text())
		code := cleanText(cells.Eq(2).Text())
		if code == "" {
			code = codeFromHref(href)
		}
		if code == "" {
			return
		}
		if name == "" {
			name = code
		}

		rows = append(rows, domain.ScrapeResult{
			Name:      name,
			Code:      code,
			URL:       absoluteURL(href, code),
			AddedDate: addedDate,
		})
	})

	return rows, nil
}

// codeFromHref turns "/stocks/RELIANCE.html" into "RELIANCE"
func codeFromHref(href string) string {
	i := strings.Index(href, "/stocks/")
	if i < 0 {
		return ""
	}
	code := href[i+len("/stocks/"):]
	code = strings.TrimSuffix(code, ".html")
	code = strings.Trim(code, "/")
	return strings.ToUpper(code)
}

func absoluteURL(href, code string) string {
	if href == "" {
		return StockPageURL(code)
	}
	u, err := url.Parse(href)
	if err != nil {
		return StockPageURL(code)
	}
	base, _ := url.Parse(baseURL)
	return base.ResolveReference(u).String()
}

// StockPageURL returns the technical chart page for a stock code
func StockPageURL(code string) string {
	return fmt.Sprintf("%s/stocks/%s.html", baseURL, url.PathEscape(code))
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
