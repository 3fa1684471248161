package slack

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// ReactionEvent is the structure received from slack-forwarder via NATS.
type ReactionEvent struct {
	Reaction  string `json:"reaction"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	MessageTS string `json:"message_ts"`
}

// ReviewVerdict maps a Slack reaction to a review outcome.
type ReviewVerdict string

const (
	VerdictConfirmed ReviewVerdict = "confirmed"
	VerdictPicked    ReviewVerdict = "picked"
	VerdictRejected  ReviewVerdict = "rejected"
	VerdictSkipped   ReviewVerdict = "skipped"
	VerdictUnknown   ReviewVerdict = "unknown"
)

// Reaction is a parsed review reaction. Candidate is the zero-based
// suggestion index the reviewer chose; it is -1 unless a step was chosen.
type Reaction struct {
	Verdict   ReviewVerdict
	Candidate int
}

var numberEmoji = map[string]int{
	"one": 0, "two": 1, "three": 2, "four": 3, "five": 4,
	"six": 5, "seven": 6, "eight": 7, "nine": 8,
}

// ParseReaction converts a Slack reaction emoji name to a review reaction.
func ParseReaction(reaction string) Reaction {
	if n, ok := numberEmoji[reaction]; ok {
		return Reaction{Verdict: VerdictPicked, Candidate: n}
	}
	switch reaction {
	case "+1", "thumbsup":
		return Reaction{Verdict: VerdictConfirmed, Candidate: 0}
	case "-1", "thumbsdown":
		return Reaction{Verdict: VerdictRejected, Candidate: -1}
	case "shrug":
		return Reaction{Verdict: VerdictSkipped, Candidate: -1}
	default:
		return Reaction{Verdict: VerdictUnknown, Candidate: -1}
	}
}

// ParseReactionEvent parses a NATS message payload from slack-forwarder into a ReactionEvent.
func ParseReactionEvent(data []byte, logger *slog.Logger) (*ReactionEvent, error) {
	// The slack-forwarder publishes events with metadata in a wrapper.
	var wrapper struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse reaction wrapper: %w", err)
	}

	evt := &ReactionEvent{
		Reaction:  wrapper.Metadata["text"],
		UserID:    wrapper.Metadata["user_id"],
		Channel:   wrapper.Metadata["channel_id"],
		MessageTS: wrapper.Metadata["message_ts"],
	}

	// Strip surrounding colons
	if len(evt.Reaction) > 2 && evt.Reaction[0] == ':' && evt.Reaction[len(evt.Reaction)-1] == ':' {
		evt.Reaction = evt.Reaction[1 : len(evt.Reaction)-1]
	}

	if evt.MessageTS == "" {
		logger.Debug("reaction event without message_ts", "reaction", evt.Reaction)
	}
	return evt, nil
}
