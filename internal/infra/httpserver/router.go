package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/m-mizutani/goerr/v2"

	appanalysis "idealens/internal/application/analysis"
	domain "idealens/internal/domain/analysis"
	"idealens/internal/middleware"
)

type Router struct {
	svc *appanalysis.Service
}

// NewRouter mounts the agent endpoints behind CORS locked to the frontend
// origin. Market size and problem definition answer synchronously; the
// competitor agent acknowledges with 202 and finishes in the background.
func NewRouter(svc *appanalysis.Service, frontendOrigin string) http.Handler {
	r := &Router{svc: svc}
	mux := chi.NewRouter()

	mux.Use(middleware.Logging)
	mux.Use(middleware.NewRateLimiter(30, 10).Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{frontendOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	mux.Get("/health", r.wrap(r.handleHealth))

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/agents/market-size", r.wrap(r.handleMarketSize))
		rt.Post("/agents/problem-definition", r.wrap(r.handleProblemDefinition))
		rt.Post("/agents/competitor-research", r.wrap(r.handleCompetitorResearch))
		rt.Get("/analyses/{id}", r.wrap(r.handleGet))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps error classes onto status codes so handlers just return errors.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, err, "not_found")
		case goerr.HasTag(err, domain.TagValidation):
			writeError(w, http.StatusBadRequest, err, "validation")
		case goerr.HasTag(err, domain.TagTimeout):
			writeError(w, http.StatusGatewayTimeout, err, "timeout")
		default:
			writeError(w, http.StatusInternalServerError, err, "internal")
		}
	}
}

func writeError(w http.ResponseWriter, status int, err error, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": err.Error(),
		"type":    kind,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

type ideaRequest struct {
	BusinessIdea string `json:"businessIdea"`
}

func readIdea(req *http.Request) (string, error) {
	var body ideaRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return "", goerr.Wrap(err, "invalid request body", goerr.T(domain.TagValidation))
	}
	return body.BusinessIdea, nil
}

// POST /v1/agents/market-size
func (r *Router) handleMarketSize(w http.ResponseWriter, req *http.Request) error {
	idea, err := readIdea(req)
	if err != nil {
		return err
	}
	rec, err := r.svc.MarketSize(req.Context(), idea)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rec)
}

// POST /v1/agents/problem-definition
func (r *Router) handleProblemDefinition(w http.ResponseWriter, req *http.Request) error {
	idea, err := readIdea(req)
	if err != nil {
		return err
	}
	rec, err := r.svc.ProblemDefinition(req.Context(), idea)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rec)
}

// POST /v1/agents/competitor-research — 202 plus the in_progress record;
// the record is already readable when this returns.
func (r *Router) handleCompetitorResearch(w http.ResponseWriter, req *http.Request) error {
	idea, err := readIdea(req)
	if err != nil {
		return err
	}
	rec, err := r.svc.CompetitorResearch(req.Context(), idea)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"analysisId": rec.ID,
		"status":     rec.Status,
		"message":    "competitor research started, poll /v1/analyses/{id} for the result",
	})
}

// GET /v1/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	rec, err := r.svc.Get(req.Context(), domain.ID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rec)
}

// GET /health probes the store as well.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) error {
	status := map[string]string{"status": "ok", "store": "ok"}
	code := http.StatusOK
	if err := r.svc.Repo.Ping(req.Context()); err != nil {
		status["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	return writeJSON(w, code, status)
}
