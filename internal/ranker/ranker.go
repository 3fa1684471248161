package ranker

import (
	"fmt"
	"math"
	"sort"

	"github.com/MikeSquared-Agency/stepwise/internal/dialogue"
	"github.com/MikeSquared-Agency/stepwise/internal/steps"
)

// Config controls how many candidates are attached to a dialogue.
type Config struct {
	// LowConfidenceThreshold is the top confidence below which a dialogue is
	// treated as ambiguous.
	LowConfidenceThreshold float64
	// AmbiguousCandidateCount is how many suggestions an ambiguous dialogue gets.
	AmbiguousCandidateCount int
}

// DefaultConfig returns a 0.5 threshold with three ambiguous candidates.
func DefaultConfig() Config {
	return Config{
		LowConfidenceThreshold:  0.5,
		AmbiguousCandidateCount: 3,
	}
}

func (c Config) Validate() error {
	if math.IsNaN(c.LowConfidenceThreshold) || c.LowConfidenceThreshold < 0 || c.LowConfidenceThreshold > 1 {
		return fmt.Errorf("low confidence threshold must be within [0,1], got %g", c.LowConfidenceThreshold)
	}
	if c.AmbiguousCandidateCount < 1 {
		return fmt.Errorf("ambiguous candidate count must be at least 1, got %d", c.AmbiguousCandidateCount)
	}
	return nil
}

// Ranker scores dialogues against every registered step and picks suggestions.
// It holds no per-dialogue state and is safe for concurrent use.
type Ranker struct {
	cfg      Config
	registry *steps.Registry
}

func New(cfg Config, registry *steps.Registry) (*Ranker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || registry.Len() == 0 {
		return nil, fmt.Errorf("ranker needs at least one registered step")
	}
	return &Ranker{cfg: cfg, registry: registry}, nil
}

func (r *Ranker) Config() Config {
	return r.cfg
}

func (r *Ranker) Registry() *steps.Registry {
	return r.registry
}

// Normalize maps a raw score onto [0,1] using the step's max score.
func Normalize(raw, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return clamp(raw / maxScore)
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

// Score runs every step over the dialogue and returns all suggestions,
// highest confidence first. Equal confidences keep registration order.
func (r *Ranker) Score(d dialogue.Dialogue) []dialogue.Suggestion {
	classifiers := r.registry.Classifiers()
	out := make([]dialogue.Suggestion, len(classifiers))
	for i, c := range classifiers {
		c.ResetScore()
		c.RunAnalysis(d)
		out[i] = dialogue.Suggestion{
			StepName:   c.StepName(),
			Confidence: Normalize(c.Score(), c.MaxScore()),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// Rank returns the suggestions to attach to a dialogue: the single best step
// when it clears the threshold, otherwise the top AmbiguousCandidateCount.
func (r *Ranker) Rank(d dialogue.Dialogue) []dialogue.Suggestion {
	all := r.Score(d)
	n := 1
	if all[0].Confidence < r.cfg.LowConfidenceThreshold {
		n = r.cfg.AmbiguousCandidateCount
	}
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// Ambiguous reports whether a ranked list signals low confidence.
func (r *Ranker) Ambiguous(suggestions []dialogue.Suggestion) bool {
	return len(suggestions) == 0 || suggestions[0].Confidence < r.cfg.LowConfidenceThreshold
}

// Annotate replaces the dialogue's suggestions with a fresh ranking.
func (r *Ranker) Annotate(d *dialogue.Dialogue) {
	ranked := r.Rank(*d)
	d.ResetSuggestions()
	for _, s := range ranked {
		d.AddSuggestion(s)
	}
}

// AnnotateAll annotates every dialogue in place.
func (r *Ranker) AnnotateAll(ds []dialogue.Dialogue) {
	for i := range ds {
		r.Annotate(&ds[i])
	}
}
