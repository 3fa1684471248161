package hermes

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	SubjectTranscriptUploaded = "stepwise.transcript.uploaded"
	SubjectTranscriptAnalyzed = "stepwise.transcript.analyzed"
	SubjectDialogueReviewed   = "stepwise.dialogue.reviewed"
	SubjectAgentRegistered    = "stepwise.agent.registered"
	SubjectSlackReaction      = "swarm.slack.reaction"
)

// TranscriptUploaded asks for a transcript file to be analysed. Transcript
// holds the raw file JSON; when it is empty the file is read from Path or
// fetched from URL.
type TranscriptUploaded struct {
	Source     string          `json:"source"`
	Path       string          `json:"path,omitempty"`
	URL        string          `json:"url,omitempty"`
	Transcript json.RawMessage `json:"transcript,omitempty"`
}

// ParseTranscriptUploaded decodes and validates an upload event payload.
func ParseTranscriptUploaded(data []byte) (*TranscriptUploaded, error) {
	var evt TranscriptUploaded
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("parse transcript uploaded: %w", err)
	}
	if evt.Path == "" && evt.URL == "" && len(evt.Transcript) == 0 {
		return nil, errors.New("transcript uploaded: no transcript, path or url set")
	}
	if evt.Source == "" {
		evt.Source = "nats"
	}
	return &evt, nil
}

// TranscriptAnalyzed is published once per transcript after a run.
type TranscriptAnalyzed struct {
	RunID        string         `json:"run_id,omitempty"`
	Source       string         `json:"source"`
	TranscriptID string         `json:"transcript_id"`
	Dialogues    int            `json:"dialogues"`
	Ambiguous    int            `json:"ambiguous"`
	TopSteps     map[string]int `json:"top_steps,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// DialogueReviewed is published when a reviewer settles a dialogue's step.
type DialogueReviewed struct {
	DialogueID string `json:"dialogue_id"`
	Verdict    string `json:"verdict"`
	StepName   string `json:"step_name,omitempty"`
	Suggested  string `json:"suggested,omitempty"`
	ReviewerID string `json:"reviewer_id,omitempty"`
}
