// Package parse normalizes model output into structured analyses. Models
// wrap JSON in code fences and drift between snake_case and camelCase
// field names, so both are handled here instead of in every caller.
package parse

import (
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"idealens/internal/domain/analysis"
)

// ModelAnalysis is one structured judgement produced by the text model.
type ModelAnalysis struct {
	Score          float64  `json:"score"`
	Confidence     float64  `json:"confidence"`
	Strengths      []string `json:"strengths,omitempty"`
	Weaknesses     []string `json:"weaknesses,omitempty"`
	MarketPosition string   `json:"market_position,omitempty"`
	ThreatLevel    string   `json:"threat_level,omitempty"`
	Reasoning      string   `json:"reasoning,omitempty"`
}

// Neutral is the stand-in when model output cannot be used.
func Neutral() ModelAnalysis {
	return ModelAnalysis{Score: 5, Confidence: 0.5}
}

// aliases maps each canonical field to the spellings models produce.
var aliases = map[string][]string{
	"score":           {"score", "overall_score", "overallScore"},
	"confidence":      {"confidence"},
	"strengths":       {"strengths"},
	"weaknesses":      {"weaknesses"},
	"market_position": {"market_position", "marketPosition"},
	"threat_level":    {"threat_level", "threatLevel"},
	"reasoning":       {"reasoning", "summary", "analysis"},
}

// Analysis parses raw model output into a ModelAnalysis. The error carries
// the malformed-output tag; callers typically substitute Neutral().
func Analysis(raw string) (ModelAnalysis, error) {
	cleaned := StripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return ModelAnalysis{}, goerr.Wrap(err, "model output is not a JSON object",
			goerr.V("raw", truncate(raw, 200)), goerr.T(analysis.TagMalformed))
	}

	var out ModelAnalysis
	pickFloat(fields, "score", &out.Score)
	pickFloat(fields, "confidence", &out.Confidence)
	pickStrings(fields, "strengths", &out.Strengths)
	pickStrings(fields, "weaknesses", &out.Weaknesses)
	pickString(fields, "market_position", &out.MarketPosition)
	pickString(fields, "threat_level", &out.ThreatLevel)
	pickString(fields, "reasoning", &out.Reasoning)

	if out.Score < 0 || out.Score > 10 {
		return ModelAnalysis{}, goerr.New("model score out of range",
			goerr.V("score", out.Score), goerr.T(analysis.TagMalformed))
	}
	if out.Confidence <= 0 {
		out.Confidence = 0.5
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, nil
}

// StripFences removes a surrounding markdown code fence if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func pickFloat(fields map[string]json.RawMessage, key string, dst *float64) {
	for _, alias := range aliases[key] {
		if raw, ok := fields[alias]; ok {
			var v float64
			if json.Unmarshal(raw, &v) == nil {
				*dst = v
				return
			}
		}
	}
}

func pickString(fields map[string]json.RawMessage, key string, dst *string) {
	for _, alias := range aliases[key] {
		if raw, ok := fields[alias]; ok {
			var v string
			if json.Unmarshal(raw, &v) == nil {
				*dst = v
				return
			}
		}
	}
}

func pickStrings(fields map[string]json.RawMessage, key string, dst *[]string) {
	for _, alias := range aliases[key] {
		if raw, ok := fields[alias]; ok {
			var v []string
			if json.Unmarshal(raw, &v) == nil {
				*dst = v
				return
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
