package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/stepwise/internal/analysis"
	"github.com/MikeSquared-Agency/stepwise/internal/store"
)

const defaultMaxUploadBytes = 32 << 20

// RunStore reads stored runs and records reviewer verdicts.
type RunStore interface {
	GetRun(ctx context.Context, id uuid.UUID) (*store.RunRow, error)
	UpdateDialogueReview(ctx context.Context, dialogueID uuid.UUID, stepName, note string) error
	GetReviewStats(ctx context.Context) (store.ReviewStats, error)
}

// Pipeline persists and announces an analysed batch.
type Pipeline interface {
	Process(ctx context.Context, source string, results []analysis.Result) uuid.UUID
}

type Server struct {
	router    *chi.Mux
	port      int
	analyzer  *analysis.Analyzer
	store     RunStore
	pipeline  Pipeline
	maxUpload int64
	logger    *slog.Logger
}

// NewServer builds the HTTP API. db and pipeline may be nil; routes that
// need them answer 503.
func NewServer(port int, apiToken string, a *analysis.Analyzer, db RunStore, pipeline Pipeline) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		analyzer:  a,
		store:     db,
		pipeline:  pipeline,
		maxUpload: defaultMaxUploadBytes,
		logger:    slog.Default(),
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/stepwise/status", s.status)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/transcripts/analyze", s.analyze)
		r.Get("/runs/{id}", s.getRun)
		r.Post("/dialogues/{id}/review", s.reviewDialogue)
		r.Get("/reviews/stats", s.reviewStats)
	})

	return s
}

// SetMaxUpload caps the accepted transcript upload size in bytes.
func (s *Server) SetMaxUpload(n int64) {
	if n > 0 {
		s.maxUpload = n
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	cfg := s.analyzer.Ranker().Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":          "stepwise",
		"status":         "ok",
		"steps":          s.analyzer.Ranker().Registry().StepNames(),
		"low_confidence": cfg.LowConfidenceThreshold,
		"candidates":     cfg.AmbiguousCandidateCount,
		"persistence":    s.store != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
