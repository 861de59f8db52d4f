package sources

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"idealens/internal/domain/analysis"
	"idealens/internal/infra/httpclient"
	"idealens/internal/logging"
)

// CensusConfig wires the population/income registry endpoints.
type CensusConfig struct {
	BaseURL string
	APIKey  string
}

// Census fetches US population, median household income and internet
// penetration. Population and income are fetched in parallel; both must
// succeed for the result to count as succeeded. Internet figures are
// best-effort on top.
type Census struct {
	client *httpclient.Client
	cfg    CensusConfig
}

func NewCensus(client *httpclient.Client, cfg CensusConfig) *Census {
	return &Census{client: client, cfg: cfg}
}

func (c *Census) Name() analysis.Source { return analysis.SourceCensus }

func (c *Census) Fetch(ctx context.Context, query string) analysis.SourceResult {
	log := logging.From(ctx)

	var (
		wg                     sync.WaitGroup
		population, income     float64
		internet               []float64
		popErr, incErr, netErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		var row []float64
		if row, popErr = c.row(ctx, "2020/dec/pl", "P1_001N"); popErr == nil {
			population = row[0]
		}
	}()
	go func() {
		defer wg.Done()
		var row []float64
		if row, incErr = c.row(ctx, "2021/acs/acs1", "B19013_001E"); incErr == nil {
			income = row[0]
		}
	}()
	go func() {
		defer wg.Done()
		internet, netErr = c.row(ctx, "2021/acs/acs1", "B28002_001E,B28002_002E")
	}()
	wg.Wait()

	if popErr != nil || incErr != nil {
		err := popErr
		if err == nil {
			err = incErr
		}
		log.Warn("census registry unavailable", "query", query, "error", err)
		return analysis.SourceResult{
			Source:  analysis.SourceCensus,
			ErrKind: analysis.KindOf(err),
		}
	}

	payload := map[string]any{
		"population":    population,
		"median_income": income,
		// addressable value in millions USD
		"addressable_value": population * (income / 1_000_000),
	}
	switch {
	case netErr != nil:
		log.Warn("census internet figures unavailable", "error", netErr)
	case len(internet) >= 2 && internet[0] > 0:
		payload["total_households"] = internet[0]
		payload["households_with_internet"] = internet[1]
		payload["internet_penetration"] = internet[1] / internet[0]
	}

	return analysis.SourceResult{
		Source:  analysis.SourceCensus,
		OK:      true,
		Payload: payload,
	}
}

// row fetches one numeric data row from a Census dataset. The registry
// responds with an array of string rows, headers first.
func (c *Census) row(ctx context.Context, dataset, fields string) ([]float64, error) {
	url := fmt.Sprintf("%s/%s?get=%s&for=us:*&key=%s", c.cfg.BaseURL, dataset, fields, c.cfg.APIKey)

	var rows [][]string
	if err := c.client.GetJSON(ctx, httpclient.Request{
		URL:    url,
		Source: "census",
	}, &rows); err != nil {
		return nil, err
	}
	return parseRow(rows)
}

// parseRow pulls the numeric cells out of a registry response, which is
// an array of string rows with the header row first.
func parseRow(rows [][]string) ([]float64, error) {
	if len(rows) < 2 || len(rows[1]) == 0 {
		return nil, fmt.Errorf("registry response missing data row")
	}
	out := make([]float64, 0, len(rows[1]))
	for _, cell := range rows[1] {
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			// trailing geography columns are not numeric; stop there
			break
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("registry data row is not numeric")
	}
	return out, nil
}
