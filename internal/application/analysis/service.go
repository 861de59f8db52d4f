// Package analysis implements the use-cases: score a business idea's
// market size, problem signal, and competitive field, persisting progress
// so callers can poll by id.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"idealens/internal/application/scoring"
	"idealens/internal/application/tasks"
	domain "idealens/internal/domain/analysis"
	"idealens/internal/infra/ai/parse"
	"idealens/internal/infra/ai/prompt"
	"idealens/internal/logging"
)

// Clock abstraction supaya gampang ditest
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

const (
	defaultFetchTimeout = 25 * time.Second
	maxAnalyzed         = 10
)

// Service wires the ports together. Thread-safe; one instance serves all
// requests.
type Service struct {
	Repo      domain.Repository
	Artifacts domain.ArtifactStore // optional report archive
	Model     domain.TextModel
	Census    domain.Fetcher
	Survey    domain.Fetcher
	Reddit    domain.Fetcher
	Search    domain.Fetcher
	Clock     Clock
	Runner    *tasks.Runner

	FetchTimeout time.Duration
}

func (s *Service) fetchTimeout() time.Duration {
	if s.FetchTimeout > 0 {
		return s.FetchTimeout
	}
	return defaultFetchTimeout
}

// MarketSize runs the synchronous market pipeline: census and survey in
// parallel under one deadline, then the scoring engine. The engine absorbs
// source failures, so this only errors on invalid input.
func (s *Service) MarketSize(ctx context.Context, idea string) (*domain.Record, error) {
	idea, err := validIdea(idea)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout())
	defer cancel()
	results := s.fanOut(fetchCtx, idea, s.Census, s.Survey)

	assessment := scoring.Market(results)
	rec := s.newRecord(domain.KindMarketSize, idea)
	s.complete(rec, assessment, map[string]any{
		"sources": results,
		"metrics": assessment.Metrics,
	})

	s.save(ctx, rec)
	return rec, nil
}

// ProblemDefinition runs the synchronous problem pipeline off the
// discussion-search adapter.
func (s *Service) ProblemDefinition(ctx context.Context, idea string) (*domain.Record, error) {
	idea, err := validIdea(idea)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout())
	defer cancel()
	results := s.fanOut(fetchCtx, idea, s.Reddit)

	assessment := scoring.Problem(results)
	rec := s.newRecord(domain.KindProblemDefinition, idea)
	details := map[string]any{"metrics": assessment.Metrics}
	if reddit := results[0]; reddit.OK {
		details["posts"] = reddit.Payload["posts"]
	}
	s.complete(rec, assessment, details)

	s.save(ctx, rec)
	return rec, nil
}

// CompetitorResearch acknowledges immediately and analyzes in the
// background. The in_progress record is durably written before this
// returns, so a poll by id never misses.
func (s *Service) CompetitorResearch(ctx context.Context, idea string) (*domain.Record, error) {
	idea, err := validIdea(idea)
	if err != nil {
		return nil, err
	}

	rec := s.newRecord(domain.KindCompetitorResearch, idea)
	if err := s.Repo.Save(ctx, rec); err != nil {
		return nil, goerr.Wrap(err, "failed to write acknowledgement record",
			goerr.T(domain.TagPersistence))
	}

	s.Runner.Go("competitor-research:"+string(rec.ID), func(bg context.Context) {
		s.runCompetitorResearch(bg, *rec)
	})
	return rec, nil
}

// Get looks a record up by id.
func (s *Service) Get(ctx context.Context, id domain.ID) (*domain.Record, error) {
	return s.Repo.Get(ctx, id)
}

// runCompetitorResearch is the background phase: discover competitors,
// analyze each with the text model, then summarize the landscape. It always
// terminates in a completed or failed record.
func (s *Service) runCompetitorResearch(ctx context.Context, base domain.Record) {
	log := logging.From(ctx)
	idea := base.BusinessIdea

	// a panic here must still leave a terminal record behind
	defer func() {
		if r := recover(); r != nil {
			log.Error("competitor research panicked", "id", base.ID, "panic", r)
			s.fail(ctx, base, fmt.Sprintf("internal error: %v", r))
		}
	}()

	searchRes := s.Search.Fetch(ctx, idea)
	competitors := competitorList(searchRes)
	if len(competitors) == 0 {
		// discovery is non-critical; complete with a neutral landscape
		s.completeNeutral(ctx, base, searchRes)
		return
	}

	analyses := make([]map[string]any, 0, len(competitors))
	modelOK := false
	for i, c := range competitors {
		if i >= maxAnalyzed {
			break
		}
		out, err := s.Model.Generate(ctx, prompt.Competitor(idea, c.Name, c.Snippet))
		a := parse.Neutral()
		if err != nil {
			log.Warn("competitor analysis generation failed", "competitor", c.Name, "error", err)
		} else if parsed, perr := parse.Analysis(out); perr != nil {
			log.Warn("competitor analysis unparseable, using neutral", "competitor", c.Name, "error", perr)
		} else {
			a = parsed
			modelOK = true
		}
		analyses = append(analyses, map[string]any{
			"name":     c.Name,
			"analysis": a,
		})

		// progress write so pollers see movement; best-effort
		progress := base
		progress.Details = map[string]any{
			"competitors_total":    len(competitors),
			"competitors_analyzed": len(analyses),
		}
		progress.UpdatedAt = s.Clock.Now()
		s.save(ctx, &progress)
	}

	landscape := parse.Neutral()
	summaries := make([]string, 0, len(analyses))
	for _, a := range analyses {
		ma := a["analysis"].(parse.ModelAnalysis)
		summaries = append(summaries, fmt.Sprintf("%s: score %.1f, threat %s. %s",
			a["name"], ma.Score, ma.ThreatLevel, ma.Reasoning))
	}
	out, err := s.Model.Generate(ctx, prompt.Landscape(idea, summaries))
	if err != nil {
		log.Warn("landscape generation failed, using neutral", "error", err)
	} else if parsed, perr := parse.Analysis(out); perr != nil {
		log.Warn("landscape output unparseable, using neutral", "error", perr)
	} else {
		landscape = parsed
		modelOK = true
	}

	results := []domain.SourceResult{searchRes, {
		Source: domain.SourceModel, OK: modelOK,
		ErrKind: errKindUnless(modelOK, domain.ErrKindMalformed),
	}}

	rec := base
	rec.Status = domain.StatusCompleted
	rec.Score = landscape.Score
	rec.Breakdown = map[string]float64{"competition": landscape.Score}
	rec.Confidence = scoring.Confidence(results)
	rec.Reasoning = landscape.Reasoning
	rec.Details = map[string]any{
		"competitors": searchRes.Payload["competitors"],
		"analyses":    analyses,
		"landscape":   landscape,
	}
	rec.UpdatedAt = s.Clock.Now()

	s.archive(ctx, &rec)
	s.save(ctx, &rec)
}

// competitorList reads discovered competitors regardless of the search
// outcome: a degraded result still carries the known incumbents.
func competitorList(res domain.SourceResult) []domain.Competitor {
	list, _ := res.Payload["competitors"].([]domain.Competitor)
	return list
}

// completeNeutral terminates the analysis with the neutral landscape when
// no competitors could be discovered at all.
func (s *Service) completeNeutral(ctx context.Context, base domain.Record, searchRes domain.SourceResult) {
	landscape := parse.Neutral()
	rec := base
	rec.Status = domain.StatusCompleted
	rec.Score = landscape.Score
	rec.Breakdown = map[string]float64{"competition": landscape.Score}
	rec.Confidence = scoring.Confidence([]domain.SourceResult{searchRes, {
		Source: domain.SourceModel, ErrKind: domain.ErrKindUnavailable,
	}})
	rec.Reasoning = "No competitors could be discovered; assuming a neutral competitive landscape."
	rec.Details = map[string]any{
		"competitors": []domain.Competitor{},
		"landscape":   landscape,
	}
	rec.UpdatedAt = s.Clock.Now()
	s.archive(ctx, &rec)
	s.save(ctx, &rec)
}

// fanOut invokes the fetchers concurrently and collects their results in
// order. Fetchers never error; a down source arrives as OK=false.
func (s *Service) fanOut(ctx context.Context, idea string, fetchers ...domain.Fetcher) []domain.SourceResult {
	results := make([]domain.SourceResult, len(fetchers))
	var wg sync.WaitGroup
	for i, f := range fetchers {
		wg.Add(1)
		go func(i int, f domain.Fetcher) {
			defer wg.Done()
			results[i] = f.Fetch(ctx, idea)
		}(i, f)
	}
	wg.Wait()
	return results
}

func (s *Service) newRecord(kind domain.Kind, idea string) *domain.Record {
	return s.newRecordWithID(domain.NewID(kind), kind, idea)
}

func (s *Service) newRecordWithID(id domain.ID, kind domain.Kind, idea string) *domain.Record {
	now := s.Clock.Now()
	return &domain.Record{
		ID:           id,
		Kind:         kind,
		Status:       domain.StatusInProgress,
		BusinessIdea: idea,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *Service) complete(rec *domain.Record, a scoring.Assessment, details map[string]any) {
	rec.Status = domain.StatusCompleted
	rec.Score = a.Score
	rec.Breakdown = a.Breakdown
	rec.Confidence = a.Confidence
	rec.Reasoning = a.Reasoning
	rec.Details = details
	rec.UpdatedAt = s.Clock.Now()
}

func (s *Service) fail(ctx context.Context, base domain.Record, msg string) {
	rec := base
	rec.Status = domain.StatusFailed
	rec.Error = msg
	rec.Confidence = 0.5
	rec.UpdatedAt = s.Clock.Now()
	s.save(ctx, &rec)
}

// save is best-effort: a store failure is logged and the pipeline carries
// on, it never blocks returning a result.
func (s *Service) save(ctx context.Context, rec *domain.Record) {
	if err := s.Repo.Save(ctx, rec); err != nil {
		logging.From(ctx).Error("record write failed",
			"id", rec.ID, "status", rec.Status, "error", err)
	}
}

// archive uploads the final report when an artifact store is configured.
func (s *Service) archive(ctx context.Context, rec *domain.Record) {
	if s.Artifacts == nil {
		return
	}
	data, err := reportJSON(rec)
	if err != nil {
		logging.From(ctx).Warn("report serialization failed", "id", rec.ID, "error", err)
		return
	}
	key := fmt.Sprintf("reports/%s.json", rec.ID)
	url, err := s.Artifacts.Upload(ctx, key, data, "application/json")
	if err != nil {
		logging.From(ctx).Warn("report archive failed", "id", rec.ID, "error", err)
		return
	}
	rec.ReportURL = url
}

func reportJSON(rec *domain.Record) ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}

func validIdea(idea string) (string, error) {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return "", domain.ErrMissingIdea
	}
	return idea, nil
}

func errKindUnless(ok bool, kind domain.ErrKind) domain.ErrKind {
	if ok {
		return ""
	}
	return kind
}
