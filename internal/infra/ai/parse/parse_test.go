package parse

import (
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idealens/internal/domain/analysis"
)

func TestAnalysisPlainJSON(t *testing.T) {
	out, err := Analysis(`{"score": 7.5, "confidence": 0.8, "threat_level": "high", "reasoning": "entrenched brand"}`)
	require.NoError(t, err)
	assert.Equal(t, 7.5, out.Score)
	assert.Equal(t, 0.8, out.Confidence)
	assert.Equal(t, "high", out.ThreatLevel)
	assert.Equal(t, "entrenched brand", out.Reasoning)
}

func TestAnalysisStripsFences(t *testing.T) {
	raw := "```json\n{\"score\": 6, \"confidence\": 0.7}\n```"
	out, err := Analysis(raw)
	require.NoError(t, err)
	assert.Equal(t, 6.0, out.Score)
}

func TestAnalysisCamelCaseAliases(t *testing.T) {
	out, err := Analysis(`{"score": 4, "confidence": 0.6, "marketPosition": "niche", "threatLevel": "low", "summary": "small player"}`)
	require.NoError(t, err)
	assert.Equal(t, "niche", out.MarketPosition)
	assert.Equal(t, "low", out.ThreatLevel)
	assert.Equal(t, "small player", out.Reasoning)
}

func TestAnalysisDefaultsConfidence(t *testing.T) {
	out, err := Analysis(`{"score": 5}`)
	require.NoError(t, err)
	assert.Equal(t, 0.5, out.Confidence)
}

func TestAnalysisRejectsNonJSON(t *testing.T) {
	_, err := Analysis("I think this competitor is quite strong overall.")
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, analysis.TagMalformed))
}

func TestAnalysisRejectsOutOfRangeScore(t *testing.T) {
	_, err := Analysis(`{"score": 42, "confidence": 0.9}`)
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, analysis.TagMalformed))
}

func TestNeutral(t *testing.T) {
	n := Neutral()
	assert.Equal(t, 5.0, n.Score)
	assert.Equal(t, 0.5, n.Confidence)
}

func TestStripFencesNoFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences(` {"a":1} `))
}
