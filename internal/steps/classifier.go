package steps

import (
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/stepwise/internal/dialogue"
)

// Classifier scores how well a dialogue matches one talk step.
// Implementations keep a running score and are not safe for concurrent use.
type Classifier interface {
	StepName() string
	MaxScore() float64
	ResetScore()
	RunAnalysis(d dialogue.Dialogue)
	Score() float64
}

// Factory builds a fresh classifier with a zeroed score.
type Factory func() Classifier

// ErrMisconfigured marks a classifier that cannot be registered.
var ErrMisconfigured = errors.New("classifier misconfigured")

// MisconfigurationError reports why a classifier was rejected at registration.
type MisconfigurationError struct {
	StepName string
	Reason   string
}

func (e *MisconfigurationError) Error() string {
	return fmt.Sprintf("step %q: %s", e.StepName, e.Reason)
}

func (e *MisconfigurationError) Unwrap() error {
	return ErrMisconfigured
}

// Registry is the ordered set of step classifiers. Registration order is the
// tie-break order used when ranking.
type Registry struct {
	factories []Factory
	names     []string
}

// NewRegistry validates every factory and returns a registry. A step with a
// non-positive max score, an empty name or a duplicate name is rejected.
func NewRegistry(factories ...Factory) (*Registry, error) {
	if len(factories) == 0 {
		return nil, fmt.Errorf("no classifiers registered: %w", ErrMisconfigured)
	}

	r := &Registry{}
	seen := make(map[string]bool, len(factories))
	for i, f := range factories {
		if f == nil {
			return nil, &MisconfigurationError{StepName: fmt.Sprintf("#%d", i), Reason: "nil factory"}
		}
		c := f()
		name := c.StepName()
		switch {
		case name == "":
			return nil, &MisconfigurationError{StepName: fmt.Sprintf("#%d", i), Reason: "empty step name"}
		case seen[name]:
			return nil, &MisconfigurationError{StepName: name, Reason: "duplicate step name"}
		case c.MaxScore() <= 0:
			return nil, &MisconfigurationError{StepName: name, Reason: fmt.Sprintf("max score must be positive, got %g", c.MaxScore())}
		}
		seen[name] = true
		r.factories = append(r.factories, f)
		r.names = append(r.names, name)
	}
	return r, nil
}

// Classifiers returns new classifier instances in registration order.
func (r *Registry) Classifiers() []Classifier {
	out := make([]Classifier, len(r.factories))
	for i, f := range r.factories {
		out[i] = f()
	}
	return out
}

// StepNames returns the registered step names in registration order.
func (r *Registry) StepNames() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered steps.
func (r *Registry) Len() int {
	return len(r.factories)
}
