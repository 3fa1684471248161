package steps

import (
	"strings"

	"github.com/MikeSquared-Agency/stepwise/internal/dialogue"
)

const (
	ButtonsStepName = "Buttons"

	buttonsMaxScore   = 20
	buttonsListCommas = 2
	buttonsListBonus  = 3
	buttonsPickLen    = 5
	buttonsPickBonus  = 3
)

// Buttons detects a step that offers an enumerated set of options the
// user picks from.
type Buttons struct {
	accumulator
}

func NewButtons(v Vocabulary) *Buttons {
	return &Buttons{accumulator{name: ButtonsStepName, max: buttonsMaxScore, vocab: v}}
}

func (b *Buttons) RunAnalysis(d dialogue.Dialogue) {
	for _, m := range d.ChatbotMessages {
		b.score += CountMatchKeywords(m, b.vocab.Chatbot)
		if strings.Count(m.Text, ",") >= buttonsListCommas {
			b.score += buttonsListBonus
		}
	}
	for _, m := range d.UserMessages {
		b.score += CountMatchKeywords(m, b.vocab.User)
		if MessageLength(m) <= buttonsPickLen {
			b.score += buttonsPickBonus
		}
	}
}

func defaultButtonsVocabulary() Vocabulary {
	return Vocabulary{
		Chatbot: []WeightGroup{
			NewGroup(map[string]float64{"which one": 5, "would you prefer": 5, " or ": 2}),
			NewGroup(map[string]float64{"choose": 5, "select": 5, "pick": 4, "options": 4}),
			NewGroup(map[string]float64{"there are": 3, "following": 3}),
		},
		User: []WeightGroup{
			NewGroup(map[string]float64{"the first": 5, "the second": 5, "the last": 4, "either": 3}),
			NewGroup(map[string]float64{"first": 2, "second": 2, "any": 2}),
		},
	}
}
