package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/stepwise/internal/analysis"
	"github.com/MikeSquared-Agency/stepwise/internal/store"
	"github.com/MikeSquared-Agency/stepwise/internal/transcript"
)

// AnalyzeResponse is returned by POST /api/v1/transcripts/analyze.
type AnalyzeResponse struct {
	RunID       string            `json:"run_id,omitempty"`
	Summary     analysis.Summary  `json:"summary"`
	Transcripts []analysis.Report `json:"transcripts"`
}

// ReviewRequest is the body of POST /api/v1/dialogues/{id}/review.
type ReviewRequest struct {
	StepName string `json:"step_name"`
	Note     string `json:"note,omitempty"`
}

// analyze handles POST /api/v1/transcripts/analyze. The body is either the
// raw transcript file or a multipart form carrying it in the "file" field.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	persist := r.URL.Query().Get("persist") == "true"
	if persist && s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}

	body, closeBody, err := s.uploadBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "transcript file too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeBody()

	ts, err := transcript.Parse(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "transcript file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid transcript file: "+err.Error())
		return
	}

	results := s.analyzer.AnalyzeBatch(r.Context(), ts)
	resp := AnalyzeResponse{
		Summary:     analysis.Summarize(results),
		Transcripts: analysis.Reports(results),
	}

	if persist {
		source := r.URL.Query().Get("source")
		if source == "" {
			source = "api"
		}
		runID := s.pipeline.Process(r.Context(), source, results)
		if runID == uuid.Nil {
			writeError(w, http.StatusInternalServerError, "failed to persist run")
			return
		}
		resp.RunID = runID.String()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) uploadBody(w http.ResponseWriter, r *http.Request) (io.Reader, func(), error) {
	if r.ContentLength > s.maxUpload {
		return nil, nil, &http.MaxBytesError{Limit: s.maxUpload}
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}

	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return nil, nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.New(`missing "file" field`)
	}
	return f, func() { f.Close() }, nil
}

// getRun handles GET /api/v1/runs/{id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// reviewDialogue handles POST /api/v1/dialogues/{id}/review.
func (s *Server) reviewDialogue(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dialogue id")
		return
	}

	var req ReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if !s.knownStep(req.StepName) {
		writeError(w, http.StatusBadRequest, "unknown step: "+req.StepName)
		return
	}

	err = s.store.UpdateDialogueReview(r.Context(), id, req.StepName, req.Note)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "dialogue not found")
		return
	}
	if err != nil {
		s.logger.Error("review update failed", "dialogue_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record review")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// reviewStats handles GET /api/v1/reviews/stats.
func (s *Server) reviewStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}

	stats, err := s.store.GetReviewStats(r.Context())
	if err != nil {
		s.logger.Error("review stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load review stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) knownStep(name string) bool {
	for _, n := range s.analyzer.Ranker().Registry().StepNames() {
		if n == name {
			return true
		}
	}
	return false
}
