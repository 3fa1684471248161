package analysis

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/stepwise/internal/dialogue"
	"github.com/MikeSquared-Agency/stepwise/internal/ranker"
	"github.com/MikeSquared-Agency/stepwise/internal/transcript"
)

const defaultWorkers = 4

// Result is the outcome of analysing one transcript.
type Result struct {
	TranscriptID string
	Dialogues    []dialogue.Dialogue
	// Ambiguous holds the indexes into Dialogues whose top suggestion fell
	// below the low-confidence threshold.
	Ambiguous []int
	Err       error
}

// Report is the serialisable form of a Result.
type Report struct {
	ID        string              `json:"id"`
	Error     string              `json:"error,omitempty"`
	Ambiguous []int               `json:"ambiguous,omitempty"`
	Dialogues []dialogue.Dialogue `json:"dialogues"`
}

func (r Result) Report() Report {
	rep := Report{ID: r.TranscriptID, Ambiguous: r.Ambiguous, Dialogues: r.Dialogues}
	if r.Err != nil {
		rep.Error = r.Err.Error()
	}
	if rep.Dialogues == nil {
		rep.Dialogues = []dialogue.Dialogue{}
	}
	return rep
}

// Reports converts a batch of results, preserving order.
func Reports(results []Result) []Report {
	out := make([]Report, len(results))
	for i, r := range results {
		out[i] = r.Report()
	}
	return out
}

// Analyzer segments transcripts and annotates every dialogue with ranked
// step suggestions.
type Analyzer struct {
	ranker  *ranker.Ranker
	workers int
	logger  *slog.Logger
}

// New creates an Analyzer. A non-positive workers value falls back to 4.
func New(r *ranker.Ranker, workers int, logger *slog.Logger) *Analyzer {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{ranker: r, workers: workers, logger: logger}
}

func (a *Analyzer) Ranker() *ranker.Ranker {
	return a.ranker
}

// AnalyzeTranscript analyses a single transcript. A transcript that failed
// to parse is passed through with its error and no dialogues.
func (a *Analyzer) AnalyzeTranscript(t transcript.Transcript) Result {
	if t.Err != nil {
		a.logger.Warn("transcript skipped", "transcript_id", t.ID, "error", t.Err)
		return Result{TranscriptID: t.ID, Err: t.Err}
	}

	dialogues := dialogue.Segment(t.Turns)
	res := Result{TranscriptID: t.ID, Dialogues: dialogues}
	for i := range dialogues {
		a.ranker.Annotate(&dialogues[i])
		if a.ranker.Ambiguous(dialogues[i].Suggestions) {
			res.Ambiguous = append(res.Ambiguous, i)
		}
	}

	a.logger.Debug("transcript analyzed",
		"transcript_id", t.ID,
		"turns", len(t.Turns),
		"dialogues", len(dialogues),
		"ambiguous", len(res.Ambiguous),
	)
	return res
}

// AnalyzeBatch analyses transcripts concurrently, bounded by the worker
// count. Results are returned in input order. Once ctx is cancelled no
// further transcripts are started; those left get ctx's error.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, ts []transcript.Transcript) []Result {
	results := make([]Result, len(ts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, t := range ts {
		if err := gctx.Err(); err != nil {
			results[i] = Result{TranscriptID: t.ID, Err: err}
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{TranscriptID: t.ID, Err: err}
				return nil
			}
			results[i] = a.AnalyzeTranscript(t)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Summary aggregates a batch of results.
type Summary struct {
	Transcripts int            `json:"transcripts"`
	Failed      int            `json:"failed"`
	Dialogues   int            `json:"dialogues"`
	Ambiguous   int            `json:"ambiguous"`
	TopSteps    map[string]int `json:"top_steps"`
}

// Summarize counts dialogues and how often each step ranked first.
func Summarize(results []Result) Summary {
	s := Summary{Transcripts: len(results), TopSteps: make(map[string]int)}
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
			continue
		}
		s.Dialogues += len(r.Dialogues)
		s.Ambiguous += len(r.Ambiguous)
		for i := range r.Dialogues {
			if top, ok := r.Dialogues[i].TopSuggestion(); ok {
				s.TopSteps[top.StepName]++
			}
		}
	}
	return s
}

// StepCount is one entry of a Summary's TopSteps in display order.
type StepCount struct {
	StepName string
	Count    int
}

// SortedTopSteps returns TopSteps ordered by count, then name.
func (s Summary) SortedTopSteps() []StepCount {
	out := make([]StepCount, 0, len(s.TopSteps))
	for name, n := range s.TopSteps {
		out = append(out, StepCount{StepName: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].StepName < out[j].StepName
	})
	return out
}
