package transcript

import (
	"errors"
	"fmt"
)

// Turn is a single raw log entry in a recorded conversation.
type Turn struct {
	Text      string
	IsChatbot bool // derived from a non-empty "metadata" field
}

// Transcript is one conversation log keyed by its source file name.
// Err is set when the log could not be read; Turns is then nil.
type Transcript struct {
	ID    string
	Turns []Turn
	Err   error
}

// ErrMalformedTranscript marks a transcript whose structure could not be read.
var ErrMalformedTranscript = errors.New("malformed transcript")

// MalformedError describes why a single transcript was rejected.
// TurnIndex is -1 when the problem is with the transcript as a whole.
type MalformedError struct {
	TranscriptID string
	TurnIndex    int
	Reason       string
}

func (e *MalformedError) Error() string {
	if e.TurnIndex < 0 {
		return fmt.Sprintf("transcript %q: %s", e.TranscriptID, e.Reason)
	}
	return fmt.Sprintf("transcript %q turn %d: %s", e.TranscriptID, e.TurnIndex, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedTranscript
}

func malformed(id string, turn int, format string, args ...any) error {
	return &MalformedError{
		TranscriptID: id,
		TurnIndex:    turn,
		Reason:       fmt.Sprintf(format, args...),
	}
}
