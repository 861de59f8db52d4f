package analysis

// Competitor is one company surfaced by the search sweep. Known marks
// entries that came from the curated incumbent table rather than a live
// search.
type Competitor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Known   bool   `json:"known,omitempty"`
}
