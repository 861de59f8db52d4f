package analysis

import (
	"time"
)

// ID tipe untuk Analysis
type ID string

// Kind enum: which agent produced the record
type Kind string

const (
	KindMarketSize         Kind = "market_size"
	KindProblemDefinition  Kind = "problem_definition"
	KindCompetitorResearch Kind = "competitor_research"
)

// Status enum
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a record in this status may never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MetricEstimate is one scored dimension (e.g. TAM, clarity). Value is the
// raw driver, Score the clamped sub-score, Details whatever the source
// adapter contributed.
type MetricEstimate struct {
	Value   float64        `json:"value"`
	Score   float64        `json:"score"`
	Details map[string]any `json:"details,omitempty"`
}

// Aggregate Root: Record
type Record struct {
	ID           ID                 `json:"analysisId"`
	Kind         Kind               `json:"type"`
	Status       Status             `json:"status"`
	BusinessIdea string             `json:"businessIdea"`
	Score        float64            `json:"score"`
	Breakdown    map[string]float64 `json:"breakdown,omitempty"`
	Confidence   float64            `json:"confidence"`
	Reasoning    string             `json:"reasoning,omitempty"`
	Details      map[string]any     `json:"details,omitempty"`
	ReportURL    string             `json:"report_url,omitempty"`
	Error        string             `json:"error,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}
