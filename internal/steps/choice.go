package steps

import "github.com/MikeSquared-Agency/stepwise/internal/dialogue"

const (
	ChoiceStepName = "Choice"

	choiceMaxScore      = 20
	choiceShortReplyLen = 3
	choiceShortReply    = 7
)

// Choice detects a yes/no confirmation step: the chatbot asks a closed
// question and the user answers with a short affirmative or negative.
type Choice struct {
	accumulator
}

func NewChoice(v Vocabulary) *Choice {
	return &Choice{accumulator{name: ChoiceStepName, max: choiceMaxScore, vocab: v}}
}

func (c *Choice) RunAnalysis(d dialogue.Dialogue) {
	for _, m := range d.ChatbotMessages {
		c.score += CountMatchKeywords(m, c.vocab.Chatbot)
	}
	for _, m := range d.UserMessages {
		c.score += CountMatchKeywords(m, c.vocab.User)
		if MessageLength(m) <= choiceShortReplyLen {
			c.score += choiceShortReply
		}
	}
}

func defaultChoiceVocabulary() Vocabulary {
	return Vocabulary{
		Chatbot: []WeightGroup{
			NewGroup(map[string]float64{"would you like": 5, "would you": 4.5}),
			NewGroup(map[string]float64{"can i": 5, "should i": 5, "could i": 5, "could": 1, "can": 1}),
			NewGroup(map[string]float64{"return to main": 5, "end conversation": 5}),
			NewGroup(map[string]float64{"is this": 4, "is that": 4, "may": 2}),
		},
		User: []WeightGroup{
			NewGroup(map[string]float64{"yes": 5, "yeah": 4, "okay": 4, "ok": 4, "sure": 3, "yeh": 2, "kk": 2}),
			NewGroup(map[string]float64{"no": 5, "nope": 4, "nah": 3, "not": 2}),
		},
	}
}
