package analysis

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Error tags classify failures across the pipeline. Handlers map tags to
// HTTP status codes; the confidence accounting maps them to ErrKind.
var (
	TagAuth        = goerr.NewTag("auth")
	TagRateLimited = goerr.NewTag("rate_limited")
	TagExhausted   = goerr.NewTag("exhausted")
	TagTimeout     = goerr.NewTag("timeout")
	TagMalformed   = goerr.NewTag("malformed_output")
	TagValidation  = goerr.NewTag("validation")
	TagPersistence = goerr.NewTag("persistence")
)

var (
	// ErrNotFound is returned by the record store when no record exists and
	// by the HTTP client on 404, where per-channel loops treat it as "skip".
	ErrNotFound = errors.New("not found")

	// ErrMissingIdea rejects blank businessIdea input before any I/O.
	ErrMissingIdea = goerr.New("businessIdea is required", goerr.T(TagValidation))
)

// KindOf maps an error to the ErrKind recorded on a failed SourceResult.
func KindOf(err error) ErrKind {
	switch {
	case goerr.HasTag(err, TagAuth):
		return ErrKindAuth
	case goerr.HasTag(err, TagRateLimited):
		return ErrKindRateLimited
	case goerr.HasTag(err, TagTimeout):
		return ErrKindTimeout
	case goerr.HasTag(err, TagExhausted):
		return ErrKindExhausted
	case goerr.HasTag(err, TagMalformed):
		return ErrKindMalformed
	default:
		return ErrKindUnavailable
	}
}
