package steps

// accumulator holds the state shared by every step classifier.
type accumulator struct {
	name  string
	max   float64
	vocab Vocabulary
	score float64
}

func (a *accumulator) StepName() string  { return a.name }
func (a *accumulator) MaxScore() float64 { return a.max }
func (a *accumulator) Score() float64    { return a.score }
func (a *accumulator) ResetScore()       { a.score = 0 }
