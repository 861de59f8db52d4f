package sources

import (
	"context"
	"fmt"

	"idealens/internal/domain/analysis"
	"idealens/internal/infra/httpclient"
	"idealens/internal/logging"
)

const (
	defaultMarketShare = 0.01
	defaultGrowthRate  = 0.05
	minGrowthRate      = -0.10
	maxGrowthRate      = 0.20
)

// Survey fetches business establishment counts from the annual business
// survey. It reuses the census registry base URL and key.
type Survey struct {
	client *httpclient.Client
	cfg    CensusConfig
}

func NewSurvey(client *httpclient.Client, cfg CensusConfig) *Survey {
	return &Survey{client: client, cfg: cfg}
}

func (s *Survey) Name() analysis.Source { return analysis.SourceSurvey }

func (s *Survey) Fetch(ctx context.Context, query string) analysis.SourceResult {
	log := logging.From(ctx)

	url := fmt.Sprintf("%s/2020/abscb?get=FIRMPDEMP,EMP&for=us:*&key=%s", s.cfg.BaseURL, s.cfg.APIKey)
	var rows [][]string
	if err := s.client.GetJSON(ctx, httpclient.Request{
		URL:    url,
		Source: "survey",
	}, &rows); err != nil {
		log.Warn("business survey unavailable", "query", query, "error", err)
		return analysis.SourceResult{
			Source:  analysis.SourceSurvey,
			ErrKind: analysis.KindOf(err),
		}
	}

	payload := map[string]any{
		"market_share": defaultMarketShare,
		"growth_rate":  clampGrowth(defaultGrowthRate),
	}
	if cells, err := parseRow(rows); err == nil {
		payload["establishments"] = cells[0]
		if len(cells) > 1 {
			payload["employment"] = cells[1]
		}
	} else {
		log.Warn("business survey rows unusable", "error", err)
	}

	return analysis.SourceResult{
		Source:  analysis.SourceSurvey,
		OK:      true,
		Payload: payload,
	}
}

func clampGrowth(g float64) float64 {
	if g < minGrowthRate {
		return minGrowthRate
	}
	if g > maxGrowthRate {
		return maxGrowthRate
	}
	return g
}
