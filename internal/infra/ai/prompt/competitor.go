package prompt

import (
	"fmt"
	"strings"
)

// Competitor builds the per-competitor analysis prompt. The schema keeps the
// model's output machine-readable; fences are stripped by the parser anyway
// because models add them regardless.
func Competitor(idea, name, snippet string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a competitive analyst. A founder is evaluating this business idea:\n\n%q\n\n", idea)
	fmt.Fprintf(&b, "Analyze the competitor %q", name)
	if snippet != "" {
		fmt.Fprintf(&b, " (described as: %s)", snippet)
	}
	b.WriteString(`.

Respond with one valid JSON object only, no markdown and no commentary:
{
  "score": <number 0-10, how strong this competitor is against the idea>,
  "confidence": <number 0-1>,
  "strengths": ["<string>", ...],
  "weaknesses": ["<string>", ...],
  "market_position": "<string>",
  "threat_level": "<low|medium|high>",
  "reasoning": "<string>"
}`)
	return b.String()
}

// Landscape builds the closing prompt that summarizes the whole field after
// every competitor was analyzed.
func Landscape(idea string, summaries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a competitive analyst. A founder is evaluating this business idea:\n\n%q\n\n", idea)
	b.WriteString("Individual competitor assessments:\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString(`
Summarize the competitive landscape. Respond with one valid JSON object only:
{
  "score": <number 0-10, overall viability of the idea given this competition>,
  "confidence": <number 0-1>,
  "market_saturation": "<low|medium|high>",
  "barriers_to_entry": ["<string>", ...],
  "differentiation_opportunities": ["<string>", ...],
  "reasoning": "<string>"
}`)
	return b.String()
}
