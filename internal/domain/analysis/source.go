package analysis

// Source enum: upstream data providers
type Source string

const (
	SourceCensus    Source = "census"
	SourceSurvey    Source = "survey"
	SourceReddit    Source = "reddit"
	SourceWebSearch Source = "websearch"
	SourceModel     Source = "model"
)

// ErrKind classifies why a source failed, for confidence accounting and logs.
type ErrKind string

const (
	ErrKindAuth        ErrKind = "auth"
	ErrKindRateLimited ErrKind = "rate_limited"
	ErrKindTimeout     ErrKind = "timeout"
	ErrKindExhausted   ErrKind = "exhausted"
	ErrKindMalformed   ErrKind = "malformed"
	ErrKindUnavailable ErrKind = "unavailable"
)

// SourceResult is the normalized outcome of one adapter invocation.
// Immutable once produced; a failed result is never retried above the
// adapter's own retry budget.
type SourceResult struct {
	Source  Source         `json:"source"`
	OK      bool           `json:"succeeded"`
	Payload map[string]any `json:"payload,omitempty"`
	ErrKind ErrKind        `json:"error_kind,omitempty"`
}

// Float returns a numeric payload field, or fallback when the result failed
// or the field is absent. Adapters store numbers as float64.
func (r SourceResult) Float(key string, fallback float64) float64 {
	if !r.OK || r.Payload == nil {
		return fallback
	}
	v, ok := r.Payload[key]
	if !ok {
		return fallback
	}
	f, ok := v.(float64)
	if !ok {
		return fallback
	}
	return f
}

// Succeeded counts how many results in the set succeeded.
func Succeeded(results []SourceResult) int {
	n := 0
	for _, r := range results {
		if r.OK {
			n++
		}
	}
	return n
}
