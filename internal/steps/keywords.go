package steps

import (
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/stepwise/internal/dialogue"
)

// Keyword is a phrase and the score it adds when found in a message.
type Keyword struct {
	Phrase string
	Weight float64
}

// WeightGroup is a set of related phrases sharing the same handling.
type WeightGroup []Keyword

// NewGroup builds a WeightGroup from a phrase→weight map, ordered by phrase.
func NewGroup(weights map[string]float64) WeightGroup {
	g := make(WeightGroup, 0, len(weights))
	for phrase, w := range weights {
		g = append(g, Keyword{Phrase: phrase, Weight: w})
	}
	sort.Slice(g, func(i, j int) bool { return g[i].Phrase < g[j].Phrase })
	return g
}

// Vocabulary is a step's keyword table, split by speaker.
type Vocabulary struct {
	Chatbot []WeightGroup
	User    []WeightGroup
}

// clone returns a deep copy so a classifier never aliases shared table data.
func (v Vocabulary) clone() Vocabulary {
	return Vocabulary{Chatbot: cloneGroups(v.Chatbot), User: cloneGroups(v.User)}
}

func cloneGroups(groups []WeightGroup) []WeightGroup {
	out := make([]WeightGroup, len(groups))
	for i, g := range groups {
		out[i] = append(WeightGroup(nil), g...)
	}
	return out
}

// CountMatchKeywords sums the weight of every phrase in groups that occurs in
// the message text. Matching is case-sensitive substring search and every
// matching phrase counts, including overlapping ones such as "can" and "can i".
func CountMatchKeywords(msg dialogue.Message, groups []WeightGroup) float64 {
	var total float64
	for _, g := range groups {
		for _, kw := range g {
			if strings.Contains(msg.Text, kw.Phrase) {
				total += kw.Weight
			}
		}
	}
	return total
}

// MessageLength returns the number of whitespace-delimited tokens in the message.
func MessageLength(msg dialogue.Message) int {
	return len(strings.Fields(msg.Text))
}
