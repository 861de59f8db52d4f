package ai

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"idealens/internal/domain/analysis"
	"idealens/internal/logging"
)

// ResilientModel retries the primary text model with exponential backoff,
// then falls back to the secondary model once. A scoped timeout caps the
// whole generation so one slow call cannot hang a pipeline.
type ResilientModel struct {
	primary    analysis.TextModel
	fallback   analysis.TextModel // optional
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
}

func NewResilientModel(primary, fallback analysis.TextModel) *ResilientModel {
	return &ResilientModel{
		primary:    primary,
		fallback:   fallback,
		maxRetries: 2,
		baseDelay:  500 * time.Millisecond,
		timeout:    250 * time.Second,
	}
}

func (r *ResilientModel) Generate(ctx context.Context, prompt string) (string, error) {
	log := logging.From(ctx)
	genCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.withRetry(genCtx, prompt)
	if err == nil {
		return out, nil
	}
	if r.fallback == nil {
		return "", err
	}

	log.Warn("primary model exhausted, switching to fallback", "error", err)
	out, fbErr := r.fallback.Generate(genCtx, prompt)
	if fbErr != nil {
		return "", goerr.Wrap(fbErr, "both primary and fallback models failed",
			goerr.V("primary_error", err.Error()), goerr.T(analysis.TagExhausted))
	}
	return out, nil
}

func (r *ResilientModel) withRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		out, err := r.primary.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == r.maxRetries {
			break
		}
		select {
		case <-time.After(r.backoff(attempt)):
		case <-ctx.Done():
			return "", goerr.Wrap(ctx.Err(), "generation timed out", goerr.T(analysis.TagTimeout))
		}
	}
	return "", lastErr
}

// isRetryable: rate limits and transient upstream faults retry, credential
// problems do not.
func isRetryable(err error) bool {
	if goerr.HasTag(err, analysis.TagAuth) {
		return false
	}
	if goerr.HasTag(err, analysis.TagRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"429", "500", "502", "503", "unavailable", "overloaded", "timeout", "connection"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func (r *ResilientModel) backoff(attempt int) time.Duration {
	d := r.baseDelay * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Float64() * 0.2 * float64(d))
	return d + jitter
}
