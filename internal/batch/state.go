package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const DefaultStatePath = "~/.stepwise/batch-state.json"

// State tracks progress for resumable batch runs.
type State struct {
	StartedAt            time.Time `json:"started_at"`
	LastProcessedAt      time.Time `json:"last_processed_at"`
	FilesProcessed       []string  `json:"files_processed"`
	FilesRemaining       int       `json:"files_remaining"`
	TranscriptsProcessed int       `json:"transcripts_processed"`
	DuplicatesSkipped    int       `json:"duplicates_skipped"`
	DialoguesFound       int       `json:"dialogues_found"`
	AmbiguousFound       int       `json:"ambiguous_found"`
	Errors               []string  `json:"errors"`

	path      string
	processed map[string]bool
}

// LoadState loads the batch state from path, or starts a new one when the
// file does not exist yet.
func LoadState(path string) (*State, error) {
	p := expandHome(path)

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{
				StartedAt: time.Now().UTC(),
				path:      p,
				processed: make(map[string]bool),
			}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	s.path = p
	s.processed = make(map[string]bool, len(s.FilesProcessed))
	for _, f := range s.FilesProcessed {
		s.processed[f] = true
	}
	return &s, nil
}

// Save persists the state to disk.
func (s *State) Save() error {
	s.LastProcessedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}

// IsProcessed returns true if the given file has already been processed.
func (s *State) IsProcessed(path string) bool {
	return s.processed[path]
}

// MarkProcessed records a file as processed.
func (s *State) MarkProcessed(path string) {
	if s.processed == nil {
		s.processed = make(map[string]bool)
	}
	if s.processed[path] {
		return
	}
	s.processed[path] = true
	s.FilesProcessed = append(s.FilesProcessed, path)
}

// AddError records a processing error.
func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
