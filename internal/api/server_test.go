package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/stepwise/internal/analysis"
	"github.com/MikeSquared-Agency/stepwise/internal/ranker"
	"github.com/MikeSquared-Agency/stepwise/internal/steps"
	"github.com/MikeSquared-Agency/stepwise/internal/store"
)

const sampleTranscripts = `{
	"SNG01.json": {"log": [
		{"text": "would you like me to book it?", "metadata": {"restaurant": {}}},
		{"text": "yes", "metadata": {}}
	]},
	"BAD.json": {"turns": []}
}`

func testAnalyzer(t *testing.T) *analysis.Analyzer {
	t.Helper()
	reg, err := steps.DefaultRegistry(steps.DefaultTables())
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	r, err := ranker.New(ranker.DefaultConfig(), reg)
	if err != nil {
		t.Fatalf("ranker.New: %v", err)
	}
	return analysis.New(r, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeStore struct {
	runs    map[uuid.UUID]*store.RunRow
	reviews map[uuid.UUID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{runs: map[uuid.UUID]*store.RunRow{}, reviews: map[uuid.UUID]string{}}
}

func (f *fakeStore) GetRun(_ context.Context, id uuid.UUID) (*store.RunRow, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) UpdateDialogueReview(_ context.Context, id uuid.UUID, step, _ string) error {
	if _, ok := f.reviews[id]; !ok {
		return store.ErrNotFound
	}
	f.reviews[id] = step
	return nil
}

func (f *fakeStore) GetReviewStats(context.Context) (store.ReviewStats, error) {
	st := store.ReviewStats{}
	for _, step := range f.reviews {
		if step != "" {
			st.Reviewed++
		}
	}
	return st, nil
}

type fakePipeline struct {
	runID   uuid.UUID
	source  string
	results []analysis.Result
}

func (f *fakePipeline) Process(_ context.Context, source string, results []analysis.Result) uuid.UUID {
	f.source = source
	f.results = results
	return f.runID
}

func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(8760, "", testAnalyzer(t), nil, nil)

	w := do(t, srv, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := NewServer(8760, "secret", testAnalyzer(t), nil, nil)

	w := do(t, srv, httptest.NewRequest("GET", "/api/v1/stepwise/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Agent       string   `json:"agent"`
		Steps       []string `json:"steps"`
		Candidates  int      `json:"candidates"`
		Persistence bool     `json:"persistence"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Agent != "stepwise" {
		t.Errorf("expected agent stepwise, got %q", body.Agent)
	}
	if len(body.Steps) != 4 || body.Steps[0] != steps.ChoiceStepName {
		t.Errorf("steps = %v", body.Steps)
	}
	if body.Candidates != 3 || body.Persistence {
		t.Errorf("candidates=%d persistence=%v", body.Candidates, body.Persistence)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := NewServer(8760, "", testAnalyzer(t), nil, nil)

	w := do(t, srv, httptest.NewRequest("GET", "/nonexistent", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestAnalyze_RawBody(t *testing.T) {
	srv := NewServer(8760, "", testAnalyzer(t), nil, nil)

	req := httptest.NewRequest("POST", "/api/v1/transcripts/analyze", strings.NewReader(sampleTranscripts))
	req.Header.Set("Content-Type", "application/json")
	w := do(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp AnalyzeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.RunID != "" {
		t.Errorf("run id should be empty without persist, got %q", resp.RunID)
	}
	if resp.Summary.Transcripts != 2 || resp.Summary.Failed != 1 || resp.Summary.Dialogues != 2 {
		t.Errorf("summary = %+v", resp.Summary)
	}
	if len(resp.Transcripts) != 2 {
		t.Fatalf("expected 2 transcripts, got %d", len(resp.Transcripts))
	}
	first := resp.Transcripts[0]
	if first.ID != "SNG01.json" || len(first.Dialogues) != 2 {
		t.Errorf("first transcript = %+v", first)
	}
	if got := first.Dialogues[1].Suggestions; len(got) != 1 || got[0].StepName != steps.ChoiceStepName {
		t.Errorf("answer suggestions = %+v", got)
	}
	if resp.Transcripts[1].Error == "" {
		t.Error("malformed transcript should report an error")
	}
}

func TestAnalyze_Multipart(t *testing.T) {
	srv := NewServer(8760, "", testAnalyzer(t), nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "dialogues.json")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(sampleTranscripts))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/transcripts/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := do(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp AnalyzeResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Summary.Transcripts != 2 {
		t.Errorf("summary = %+v", resp.Summary)
	}
}

func TestAnalyze_MultipartMissingFile(t *testing.T) {
	srv := NewServer(8760, "", testAnalyzer(t), nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("other", "x")
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/transcripts/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := do(t, srv, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAnalyze_InvalidDocument(t *testing.T) {
	srv := NewServer(8760, "", testAnalyzer(t), nil, nil)

	w := do(t, srv, httptest.NewRequest("POST", "/api/v1/transcripts/analyze", strings.NewReader(`[1, 2]`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAnalyze_TooLarge(t *testing.T) {
	multipartBody := func() (*bytes.Buffer, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "dialogues.json")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(strings.Repeat(sampleTranscripts, 20)))
		mw.Close()
		return &buf, mw.FormDataContentType()
	}

	tests := []struct {
		name  string
		build func() *http.Request
	}{
		{
			name: "raw body",
			build: func() *http.Request {
				return httptest.NewRequest("POST", "/api/v1/transcripts/analyze", strings.NewReader(sampleTranscripts))
			},
		},
		{
			name: "multipart body",
			build: func() *http.Request {
				buf, ct := multipartBody()
				req := httptest.NewRequest("POST", "/api/v1/transcripts/analyze", buf)
				req.Header.Set("Content-Type", ct)
				return req
			},
		},
		{
			name: "multipart body without content length",
			build: func() *http.Request {
				buf, ct := multipartBody()
				req := httptest.NewRequest("POST", "/api/v1/transcripts/analyze", io.NopCloser(buf))
				req.Header.Set("Content-Type", ct)
				req.ContentLength = -1
				return req
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(8760, "", testAnalyzer(t), nil, nil)
			srv.SetMaxUpload(64)

			w := do(t, srv, tt.build())
			if w.Code != http.StatusRequestEntityTooLarge {
				t.Errorf("expected 413, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAnalyze_Persist(t *testing.T) {
	pipe := &fakePipeline{runID: uuid.New()}
	srv := NewServer(8760, "", testAnalyzer(t), newFakeStore(), pipe)

	req := httptest.NewRequest("POST", "/api/v1/transcripts/analyze?persist=true&source=nightly", strings.NewReader(sampleTranscripts))
	w := do(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp AnalyzeResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.RunID != pipe.runID.String() {
		t.Errorf("run id = %q, want %q", resp.RunID, pipe.runID)
	}
	if pipe.source != "nightly" || len(pipe.results) != 2 {
		t.Errorf("pipeline got source=%q results=%d", pipe.source, len(pipe.results))
	}
}

func TestAnalyze_PersistFailures(t *testing.T) {
	t.Run("no pipeline", func(t *testing.T) {
		srv := NewServer(8760, "", testAnalyzer(t), nil, nil)
		w := do(t, srv, httptest.NewRequest("POST", "/api/v1/transcripts/analyze?persist=true", strings.NewReader(sampleTranscripts)))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})

	t.Run("store write failed", func(t *testing.T) {
		srv := NewServer(8760, "", testAnalyzer(t), newFakeStore(), &fakePipeline{runID: uuid.Nil})
		w := do(t, srv, httptest.NewRequest("POST", "/api/v1/transcripts/analyze?persist=true", strings.NewReader(sampleTranscripts)))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", w.Code)
		}
	})
}

func TestBearerAuth(t *testing.T) {
	srv := NewServer(8760, "secret", testAnalyzer(t), nil, nil)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
		{"lowercase scheme", "bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/transcripts/analyze", strings.NewReader(sampleTranscripts))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := do(t, srv, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestGetRun(t *testing.T) {
	db := newFakeStore()
	id := uuid.New()
	db.runs[id] = &store.RunRow{ID: id, Source: "api", Transcripts: 1}
	srv := NewServer(8760, "", testAnalyzer(t), db, nil)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/api/v1/runs/" + id.String(), http.StatusOK},
		{"absent", "/api/v1/runs/" + uuid.New().String(), http.StatusNotFound},
		{"bad id", "/api/v1/runs/not-a-uuid", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, httptest.NewRequest("GET", tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestGetRun_NoStore(t *testing.T) {
	srv := NewServer(8760, "", testAnalyzer(t), nil, nil)

	w := do(t, srv, httptest.NewRequest("GET", "/api/v1/runs/"+uuid.New().String(), nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestReviewDialogue(t *testing.T) {
	db := newFakeStore()
	known := uuid.New()
	db.reviews[known] = ""
	srv := NewServer(8760, "", testAnalyzer(t), db, nil)

	tests := []struct {
		name string
		id   uuid.UUID
		body string
		want int
	}{
		{"recorded", known, `{"step_name": "Capture", "note": "asks for a date"}`, http.StatusNoContent},
		{"unknown step", known, `{"step_name": "Dance"}`, http.StatusBadRequest},
		{"unknown field", known, `{"step": "Capture"}`, http.StatusBadRequest},
		{"absent dialogue", uuid.New(), `{"step_name": "Speak"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/api/v1/dialogues/" + tt.id.String() + "/review"
			w := do(t, srv, httptest.NewRequest("POST", path, strings.NewReader(tt.body)))
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	if db.reviews[known] != "Capture" {
		t.Errorf("review = %q, want Capture", db.reviews[known])
	}

	w := do(t, srv, httptest.NewRequest("GET", "/api/v1/reviews/stats", nil))
	var stats store.ReviewStats
	json.NewDecoder(w.Body).Decode(&stats)
	if w.Code != http.StatusOK || stats.Reviewed != 1 {
		t.Errorf("stats code=%d body=%+v", w.Code, stats)
	}
}
