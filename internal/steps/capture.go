package steps

import (
	"strings"
	"unicode"

	"github.com/MikeSquared-Agency/stepwise/internal/dialogue"
)

const (
	CaptureStepName = "Capture"

	captureMaxScore    = 25
	captureShortLen    = 3
	captureLongReply   = 3
	captureDigitsReply = 4
)

// Capture detects an open data-collection step: the chatbot asks for a
// value (a name, a date, a number) and the user answers with free text.
type Capture struct {
	accumulator
}

func NewCapture(v Vocabulary) *Capture {
	return &Capture{accumulator{name: CaptureStepName, max: captureMaxScore, vocab: v}}
}

func (c *Capture) RunAnalysis(d dialogue.Dialogue) {
	for _, m := range d.ChatbotMessages {
		c.score += CountMatchKeywords(m, c.vocab.Chatbot)
	}
	for _, m := range d.UserMessages {
		c.score += CountMatchKeywords(m, c.vocab.User)
		if MessageLength(m) > captureShortLen {
			c.score += captureLongReply
		}
		if strings.IndexFunc(m.Text, unicode.IsDigit) >= 0 {
			c.score += captureDigitsReply
		}
	}
}

func defaultCaptureVocabulary() Vocabulary {
	return Vocabulary{
		Chatbot: []WeightGroup{
			NewGroup(map[string]float64{"what is your": 5, "what's your": 5, "please enter": 5, "please provide": 5}),
			NewGroup(map[string]float64{"can you tell me": 4.5, "tell me": 3, "let me know": 3}),
			NewGroup(map[string]float64{"name": 3, "email": 3, "phone": 3, "address": 3, "number": 2, "date": 2, "time": 2}),
			NewGroup(map[string]float64{"how many": 4, "which day": 4, "when": 2, "where": 2}),
		},
		User: []WeightGroup{
			NewGroup(map[string]float64{"my name is": 5, "i am": 3, "i'm": 3, "it's": 2, "it is": 2}),
			NewGroup(map[string]float64{"@": 4, "am": 1, "pm": 1}),
		},
	}
}
