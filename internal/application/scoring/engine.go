// Package scoring turns normalized source results into a weighted 0-10
// score with per-dimension sub-scores and a data-availability confidence.
// Everything here is a pure function: same inputs, same outputs, no I/O.
package scoring

import (
	"fmt"
	"math"

	"idealens/internal/domain/analysis"
)

// Fallback constants substituted when a live source is unavailable. The
// pipeline must always produce a number, so these are policy, not guesses:
// US-wide figures for the market dimensions, conservative multipliers for
// share and growth.
const (
	FallbackPopulation  = 331_000_000.0
	FallbackIncome      = 67_521.0
	FallbackPenetration = 0.9
	FallbackMarketShare = 0.01
	FallbackGrowth      = 0.05
)

// Sub-score ceilings. Each dimension maps its driver linearly into
// [0, max]; the four ceilings sum to 10.
const (
	maxTAMScore       = 3.0
	maxSAMScore       = 3.0
	maxSOMScore       = 2.0
	maxGrowthScore    = 2.0
	maxClarityScore   = 3.0
	maxEvidenceScore  = 3.0
	maxUrgencyScore   = 2.0
	maxFrequencyScore = 2.0
)

// Assessment is the engine's output, ready to be placed on a record.
type Assessment struct {
	Score      float64
	Breakdown  map[string]float64
	Confidence float64
	Reasoning  string
	Metrics    map[string]analysis.MetricEstimate
}

// Market estimates TAM/SAM/SOM and growth from the census and survey
// results. It never fails: missing inputs fall back to the documented
// constants and the confidence reflects what was actually available.
func Market(results []analysis.SourceResult) Assessment {
	census := pick(results, analysis.SourceCensus)
	survey := pick(results, analysis.SourceSurvey)

	population := census.Float("population", FallbackPopulation)
	income := census.Float("median_income", FallbackIncome)
	penetration := census.Float("internet_penetration", FallbackPenetration)
	share := survey.Float("market_share", FallbackMarketShare)
	growth := survey.Float("growth_rate", FallbackGrowth)

	// tam is in millions USD; sam and som are nested fractions of it
	tam := population * (income / 1_000_000)
	sam := tam * penetration
	som := sam * share

	tamScore := clamp((tam/1000)*maxTAMScore, maxTAMScore)
	samScore := clamp(penetration*maxSAMScore, maxSAMScore)
	somScore := clamp(share*10*maxSOMScore, maxSOMScore)
	growthScore := clamp(growth*10*maxGrowthScore, maxGrowthScore)

	total := round1(tamScore + samScore + somScore + growthScore)
	breakdown := map[string]float64{
		"tam":    round1(tamScore),
		"sam":    round1(samScore),
		"som":    round1(somScore),
		"growth": round1(growthScore),
	}

	return Assessment{
		Score:      total,
		Breakdown:  breakdown,
		Confidence: Confidence(results),
		Reasoning: fmt.Sprintf(
			"TAM of $%.0fM serves a population of %.0f at median income $%.0f. "+
				"SAM of $%.0fM assumes %.0f%% reachability; SOM of $%.0fM assumes %.1f%% obtainable share. "+
				"Annual growth estimated at %.1f%%. Overall market score: %.1f/10.",
			tam, population, income, sam, penetration*100, som, share*100, growth*100, total),
		Metrics: map[string]analysis.MetricEstimate{
			"tam": {Value: tam, Score: round1(tamScore), Details: map[string]any{
				"population": population, "median_income": income}},
			"sam": {Value: sam, Score: round1(samScore), Details: map[string]any{
				"penetration": penetration}},
			"som": {Value: som, Score: round1(somScore), Details: map[string]any{
				"market_share": share}},
			"growth": {Value: growth, Score: round1(growthScore), Details: nil},
		},
	}
}

// Problem scores how clearly and urgently people discuss the problem the
// idea addresses, from the discussion-search result. With no discussion
// data at all the dimensions score zero; that is a finding, not an error.
func Problem(results []analysis.SourceResult) Assessment {
	reddit := pick(results, analysis.SourceReddit)

	posts := reddit.Float("total_posts", 0)
	totalScore := reddit.Float("total_score", 0)
	comments := reddit.Float("total_comments", 0)
	urgency := reddit.Float("urgency_count", 0)

	var clarity, evidence, urgencyScore, frequency float64
	if posts > 0 {
		clarity = clamp((totalScore/(posts*100))*maxClarityScore, maxClarityScore)
		evidence = clamp((posts/50)*maxEvidenceScore, maxEvidenceScore)
		urgencyScore = clamp((urgency/(posts*2))*maxUrgencyScore, maxUrgencyScore)
		frequency = clamp((comments/(posts*10))*maxFrequencyScore, maxFrequencyScore)
	}

	total := round1(clarity + evidence + urgencyScore + frequency)
	breakdown := map[string]float64{
		"clarity":   round1(clarity),
		"evidence":  round1(evidence),
		"urgency":   round1(urgencyScore),
		"frequency": round1(frequency),
	}

	reasoning := fmt.Sprintf(
		"Found %.0f relevant discussions with %.0f comments and a combined popularity score of %.0f; "+
			"%.0f posts signal urgency. Overall problem score: %.1f/10.",
		posts, comments, totalScore, urgency, total)
	if posts == 0 {
		reasoning = "No relevant discussions were found, so the problem signal could not be validated. " +
			"Overall problem score: 0.0/10."
	}

	return Assessment{
		Score:      total,
		Breakdown:  breakdown,
		Confidence: Confidence(results),
		Reasoning:  reasoning,
		Metrics: map[string]analysis.MetricEstimate{
			"clarity":   {Value: totalScore, Score: round1(clarity), Details: nil},
			"evidence":  {Value: posts, Score: round1(evidence), Details: nil},
			"urgency":   {Value: urgency, Score: round1(urgencyScore), Details: nil},
			"frequency": {Value: comments, Score: round1(frequency), Details: nil},
		},
	}
}

// Confidence grows with data availability, never with model certainty:
// min(0.9, 0.5 + 0.1 per succeeded source).
func Confidence(results []analysis.SourceResult) float64 {
	return math.Min(0.9, 0.5+0.1*float64(analysis.Succeeded(results)))
}

func pick(results []analysis.SourceResult, src analysis.Source) analysis.SourceResult {
	for _, r := range results {
		if r.Source == src {
			return r
		}
	}
	return analysis.SourceResult{Source: src}
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
