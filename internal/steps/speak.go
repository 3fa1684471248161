package steps

import (
	"strings"

	"github.com/MikeSquared-Agency/stepwise/internal/dialogue"
)

const (
	SpeakStepName = "Speak"

	speakMaxScore  = 15
	speakStatement = 3
	speakNoReply   = 3
)

// Speak detects a one-way informational step where the chatbot states
// something and does not wait on a specific answer.
type Speak struct {
	accumulator
}

func NewSpeak(v Vocabulary) *Speak {
	return &Speak{accumulator{name: SpeakStepName, max: speakMaxScore, vocab: v}}
}

func (s *Speak) RunAnalysis(d dialogue.Dialogue) {
	for _, m := range d.ChatbotMessages {
		s.score += CountMatchKeywords(m, s.vocab.Chatbot)
		if !strings.Contains(m.Text, "?") {
			s.score += speakStatement
		}
	}
	if len(d.ChatbotMessages) > 0 && len(d.UserMessages) == 0 {
		s.score += speakNoReply
	}
	for _, m := range d.UserMessages {
		s.score += CountMatchKeywords(m, s.vocab.User)
	}
}

func defaultSpeakVocabulary() Vocabulary {
	return Vocabulary{
		Chatbot: []WeightGroup{
			NewGroup(map[string]float64{"here is": 4, "here are": 4, "i have": 3, "i found": 4}),
			NewGroup(map[string]float64{"booked": 4, "reserved": 4, "confirmed": 3, "reference number": 5}),
			NewGroup(map[string]float64{"thank you": 3, "you're welcome": 4, "goodbye": 4, "have a great": 4}),
		},
		User: []WeightGroup{
			NewGroup(map[string]float64{"thank": 4, "thanks": 2, "bye": 3, "great": 2}),
		},
	}
}
