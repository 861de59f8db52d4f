package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appanalysis "idealens/internal/application/analysis"
	"idealens/internal/application/tasks"
	domain "idealens/internal/domain/analysis"
	"idealens/internal/logging"
)

type memRepo struct {
	mu      sync.Mutex
	records map[domain.ID]domain.Record
}

func (r *memRepo) Save(ctx context.Context, rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.records[rec.ID]; ok && prev.Status.Terminal() && !rec.Status.Terminal() {
		return nil
	}
	r.records[rec.ID] = *rec
	return nil
}

func (r *memRepo) Get(ctx context.Context, id domain.ID) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id domain.ID, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[id]
	rec.Status = status
	r.records[id] = rec
	return nil
}

func (r *memRepo) Ping(ctx context.Context) error { return nil }

type staticFetcher struct {
	src    domain.Source
	result domain.SourceResult
	calls  int
}

func (f *staticFetcher) Name() domain.Source { return f.src }
func (f *staticFetcher) Fetch(ctx context.Context, query string) domain.SourceResult {
	f.calls++
	return f.result
}

type staticModel struct{ out string }

func (m *staticModel) Generate(ctx context.Context, prompt string) (string, error) {
	return m.out, nil
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func newTestServer(t *testing.T) (http.Handler, *memRepo, *staticFetcher, *tasks.Runner) {
	t.Helper()
	repo := &memRepo{records: map[domain.ID]domain.Record{}}
	runner := tasks.NewRunner(logging.New("error", nil))
	census := &staticFetcher{src: domain.SourceCensus, result: domain.SourceResult{
		Source: domain.SourceCensus, OK: true,
		Payload: map[string]any{"population": 331_000_000.0, "median_income": 67_521.0},
	}}
	svc := &appanalysis.Service{
		Repo:   repo,
		Model:  &staticModel{out: `{"score": 6, "confidence": 0.8, "reasoning": "crowded"}`},
		Census: census,
		Survey: &staticFetcher{src: domain.SourceSurvey, result: domain.SourceResult{
			Source: domain.SourceSurvey, OK: true,
			Payload: map[string]any{"market_share": 0.01, "growth_rate": 0.05},
		}},
		Reddit: &staticFetcher{src: domain.SourceReddit, result: domain.SourceResult{
			Source: domain.SourceReddit, ErrKind: domain.ErrKindUnavailable,
		}},
		Search: &staticFetcher{src: domain.SourceWebSearch, result: domain.SourceResult{
			Source: domain.SourceWebSearch, OK: true,
			Payload: map[string]any{"competitors": []domain.Competitor{{Name: "Acme"}}},
		}},
		Clock:  wallClock{},
		Runner: runner,
	}
	return NewRouter(svc, "http://localhost:5173"), repo, census, runner
}

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestMarketSizeEndpoint(t *testing.T) {
	h, _, _, _ := newTestServer(t)

	w := postJSON(h, "/v1/agents/market-size", `{"businessIdea": "smart football socks"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var rec domain.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	assert.Greater(t, rec.Score, 0.0)
}

func TestBlankIdeaRejectedWithoutOutboundCalls(t *testing.T) {
	h, _, census, _ := newTestServer(t)

	w := postJSON(h, "/v1/agents/market-size", `{"businessIdea": "  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, census.calls)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation", body["type"])
}

func TestMalformedBodyRejected(t *testing.T) {
	h, _, _, _ := newTestServer(t)
	w := postJSON(h, "/v1/agents/market-size", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompetitorResearchAcceptedAndPollable(t *testing.T) {
	h, repo, _, runner := newTestServer(t)

	w := postJSON(h, "/v1/agents/competitor-research", `{"businessIdea": "smart football socks"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var ack struct {
		AnalysisID string `json:"analysisId"`
		Status     string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	require.NotEmpty(t, ack.AnalysisID)
	assert.Equal(t, "in_progress", ack.Status)

	// the acknowledgement write happened before the 202, so a poll right
	// now must find the record
	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/"+ack.AnalysisID, nil)
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, req)
	require.Equal(t, http.StatusOK, pw.Code)

	require.NoError(t, runner.Shutdown(context.Background()))
	repo.mu.Lock()
	final := repo.records[domain.ID(ack.AnalysisID)]
	repo.mu.Unlock()
	assert.Equal(t, domain.StatusCompleted, final.Status)
}

func TestGetUnknownAnalysis(t *testing.T) {
	h, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/ms_0_missing", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreflightCORS(t *testing.T) {
	h, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/agents/market-size", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173",
		w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	h, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
