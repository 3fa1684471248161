package dialogue

import "encoding/json"

// Role identifies who authored a message.
type Role string

const (
	RoleRequest  Role = "request"  // user
	RoleResponse Role = "response" // chatbot
)

// Message is a single utterance inside a dialogue.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Suggestion is a candidate talk step with its normalized confidence.
type Suggestion struct {
	StepName   string  `json:"step_name"`
	Confidence float64 `json:"confidence"`
}

// Dialogue is one back-and-forth unit between the chatbot and the user.
// Suggestions are kept sorted by descending confidence.
type Dialogue struct {
	ChatbotMessages []Message    `json:"chatbot_messages"`
	UserMessages    []Message    `json:"user_messages"`
	Suggestions     []Suggestion `json:"suggestions,omitempty"`
}

// MarshalJSON always emits both message sides as arrays, empty ones included.
func (d Dialogue) MarshalJSON() ([]byte, error) {
	type plain Dialogue
	out := plain(d)
	if out.ChatbotMessages == nil {
		out.ChatbotMessages = []Message{}
	}
	if out.UserMessages == nil {
		out.UserMessages = []Message{}
	}
	return json.Marshal(out)
}

// AddSuggestion inserts s after every suggestion with an equal or higher confidence.
func (d *Dialogue) AddSuggestion(s Suggestion) {
	i := len(d.Suggestions)
	for i > 0 && d.Suggestions[i-1].Confidence < s.Confidence {
		i--
	}
	d.Suggestions = append(d.Suggestions, Suggestion{})
	copy(d.Suggestions[i+1:], d.Suggestions[i:])
	d.Suggestions[i] = s
}

// ResetSuggestions drops all suggestions.
func (d *Dialogue) ResetSuggestions() {
	d.Suggestions = nil
}

// TopSuggestion returns the highest-confidence suggestion, if any.
func (d *Dialogue) TopSuggestion() (Suggestion, bool) {
	if len(d.Suggestions) == 0 {
		return Suggestion{}, false
	}
	return d.Suggestions[0], true
}

// MessageCount returns the number of chatbot and user messages combined.
func (d *Dialogue) MessageCount() int {
	return len(d.ChatbotMessages) + len(d.UserMessages)
}
