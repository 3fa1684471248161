package dialogue

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAddSuggestion_KeepsDescendingOrder(t *testing.T) {
	var d Dialogue
	d.AddSuggestion(Suggestion{StepName: "Speak", Confidence: 0.2})
	d.AddSuggestion(Suggestion{StepName: "Choice", Confidence: 0.9})
	d.AddSuggestion(Suggestion{StepName: "Capture", Confidence: 0.5})
	d.AddSuggestion(Suggestion{StepName: "Buttons", Confidence: 0.5})

	want := []string{"Choice", "Capture", "Buttons", "Speak"}
	if len(d.Suggestions) != len(want) {
		t.Fatalf("expected %d suggestions, got %d", len(want), len(d.Suggestions))
	}
	for i, name := range want {
		if d.Suggestions[i].StepName != name {
			t.Errorf("suggestion[%d] = %q, want %q", i, d.Suggestions[i].StepName, name)
		}
	}
}

func TestTopSuggestion(t *testing.T) {
	var d Dialogue
	if _, ok := d.TopSuggestion(); ok {
		t.Error("expected no top suggestion on empty dialogue")
	}

	d.AddSuggestion(Suggestion{StepName: "Choice", Confidence: 0.4})
	d.AddSuggestion(Suggestion{StepName: "Speak", Confidence: 0.8})
	top, ok := d.TopSuggestion()
	if !ok || top.StepName != "Speak" {
		t.Errorf("top = %+v, want Speak", top)
	}

	d.ResetSuggestions()
	if len(d.Suggestions) != 0 {
		t.Errorf("expected suggestions cleared, got %d", len(d.Suggestions))
	}
}

func TestDialogueJSON_EmptySidesAreArrays(t *testing.T) {
	tests := []struct {
		name string
		d    Dialogue
		want []string
	}{
		{
			name: "chatbot only",
			d:    Dialogue{ChatbotMessages: []Message{{Role: RoleResponse, Text: "hi"}}},
			want: []string{`"user_messages":[]`, `"chatbot_messages":[{"role":"response","text":"hi"}]`},
		},
		{
			name: "user only",
			d:    Dialogue{UserMessages: []Message{{Role: RoleRequest, Text: "hello"}}},
			want: []string{`"chatbot_messages":[]`, `"user_messages":[{"role":"request","text":"hello"}]`},
		},
		{
			name: "no messages",
			d:    Dialogue{Suggestions: []Suggestion{{StepName: "Speak", Confidence: 0.4}}},
			want: []string{`"chatbot_messages":[]`, `"user_messages":[]`, `"suggestions":[{"step_name":"Speak","confidence":0.4}]`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(&tt.d)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			got := string(data)
			if strings.Contains(got, "null") {
				t.Errorf("unexpected null in %s", got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("%s missing %s", got, w)
				}
			}
		})
	}
}
