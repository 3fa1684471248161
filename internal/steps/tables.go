package steps

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tables maps a step name to its keyword vocabulary.
type Tables map[string]Vocabulary

// DefaultTables returns the built-in vocabulary for every step.
func DefaultTables() Tables {
	return Tables{
		ChoiceStepName:  defaultChoiceVocabulary(),
		CaptureStepName: defaultCaptureVocabulary(),
		SpeakStepName:   defaultSpeakVocabulary(),
		ButtonsStepName: defaultButtonsVocabulary(),
	}
}

// tableFile is the YAML layout for keyword overrides:
//
//	Choice:
//	  chatbot:
//	    - {"would you like": 5, "would you": 4.5}
//	  user:
//	    - {"yes": 5, "ok": 4}
type tableFile map[string]struct {
	Chatbot []map[string]float64 `yaml:"chatbot"`
	User    []map[string]float64 `yaml:"user"`
}

// LoadTables reads keyword overrides from a YAML file on top of the defaults.
// Steps that are absent from the file keep their built-in vocabulary, and so
// does a speaker list a step entry leaves out. An explicit empty list clears it.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword tables: %w", err)
	}
	return ParseTables(data)
}

// ParseTables decodes YAML keyword overrides on top of the defaults.
func ParseTables(data []byte) (Tables, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse keyword tables: %w", err)
	}

	tables := DefaultTables()
	for step, entry := range f {
		if _, ok := tables[step]; !ok {
			return nil, fmt.Errorf("keyword tables: unknown step %q", step)
		}
		chatbot, err := toGroups(step, "chatbot", entry.Chatbot)
		if err != nil {
			return nil, err
		}
		user, err := toGroups(step, "user", entry.User)
		if err != nil {
			return nil, err
		}
		v := tables[step]
		if entry.Chatbot != nil {
			v.Chatbot = chatbot
		}
		if entry.User != nil {
			v.User = user
		}
		tables[step] = v
	}
	return tables, nil
}

func toGroups(step, speaker string, raw []map[string]float64) ([]WeightGroup, error) {
	groups := make([]WeightGroup, 0, len(raw))
	for i, m := range raw {
		for phrase, w := range m {
			if phrase == "" {
				return nil, fmt.Errorf("keyword tables: %s %s group %d: empty phrase", step, speaker, i)
			}
			if w < 0 {
				return nil, fmt.Errorf("keyword tables: %s %s group %d: negative weight for %q", step, speaker, i, phrase)
			}
		}
		groups = append(groups, NewGroup(m))
	}
	return groups, nil
}

// DefaultFactories returns the step factories in tie-break order:
// Choice, Capture, Speak, Buttons. Each vocabulary is copied once and then
// shared read-only by every classifier the factory builds.
func DefaultFactories(t Tables) []Factory {
	choice := t[ChoiceStepName].clone()
	capture := t[CaptureStepName].clone()
	speak := t[SpeakStepName].clone()
	buttons := t[ButtonsStepName].clone()

	return []Factory{
		func() Classifier { return NewChoice(choice) },
		func() Classifier { return NewCapture(capture) },
		func() Classifier { return NewSpeak(speak) },
		func() Classifier { return NewButtons(buttons) },
	}
}

// DefaultRegistry builds a registry from the given tables.
func DefaultRegistry(t Tables) (*Registry, error) {
	return NewRegistry(DefaultFactories(t)...)
}
