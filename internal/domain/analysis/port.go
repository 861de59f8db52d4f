package analysis

import "context"

// Repository port (interface untuk persistence). Implementations must keep
// status transitions monotonic: once a record is completed or failed, a later
// Save or UpdateStatus must never regress it to in_progress.
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id ID) (*Record, error)
	UpdateStatus(ctx context.Context, id ID, status Status) error
	Ping(ctx context.Context) error
}

// ArtifactStore port: archives the final report JSON, returns a URL.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Fetcher is the capability every source adapter implements. A Fetcher never
// returns an error: upstream failure is expressed as a SourceResult with
// OK=false and an ErrKind, so the pipeline always proceeds.
type Fetcher interface {
	Name() Source
	Fetch(ctx context.Context, query string) SourceResult
}

// TextModel port (interface untuk generative analysis).
type TextModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
