package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/stepwise/internal/analysis"
	"github.com/MikeSquared-Agency/stepwise/internal/dialogue"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxQuoteLen caps each quoted message in a review item.
const maxQuoteLen = 200

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// ReviewItem is one low-confidence dialogue offered to a reviewer.
type ReviewItem struct {
	TranscriptID  string
	DialogueIndex int
	Dialogue      dialogue.Dialogue
}

// ThreadItem ties a posted thread reply back to the ReviewItem it shows.
type ThreadItem struct {
	TS  string
	Idx int
}

type ReviewThread struct {
	HeaderTS string
	Items    []ThreadItem
}

// PostReviewSummary posts the per-step counts of a run as a standalone message.
// Returns the message timestamp (ts).
func (p *Poster) PostReviewSummary(ctx context.Context, source, runID string, sum analysis.Summary) (string, error) {
	text := formatSummaryMessage(source, runID, sum)
	ts, err := p.postMessage(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("posted run summary to slack", "ts", ts, "source", source, "run_id", runID)
	return ts, nil
}

// PostReviewThread posts the run summary followed by one thread reply per
// ambiguous dialogue, so reviewers can react on each item.
func (p *Poster) PostReviewThread(ctx context.Context, source, runID string, sum analysis.Summary, items []ReviewItem) (*ReviewThread, error) {
	headerTS, err := p.PostReviewSummary(ctx, source, runID, sum)
	if err != nil {
		return nil, err
	}

	thread := &ReviewThread{HeaderTS: headerTS}
	for i, item := range items {
		text := formatItemMessage(item)
		ts, err := p.postMessage(ctx, map[string]any{
			"channel":   p.channel,
			"thread_ts": headerTS,
			"text":      text,
			"blocks": []map[string]any{
				{
					"type": "section",
					"text": map[string]any{
						"type": "mrkdwn",
						"text": text,
					},
				},
				{
					"type": "context",
					"elements": []map[string]any{
						{
							"type": "mrkdwn",
							"text": "React: :one: :two: :three: pick a candidate | :+1: top is right | :-1: none fit | :shrug: skip",
						},
					},
				},
			},
		})
		if err != nil {
			p.logger.Warn("failed to post review item", "transcript_id", item.TranscriptID, "dialogue", item.DialogueIndex, "error", err)
			continue
		}
		thread.Items = append(thread.Items, ThreadItem{TS: ts, Idx: i})
	}

	return thread, nil
}

// PostThread posts a threaded reply to a message. An empty threadTS posts a
// standalone message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	payload := map[string]any{
		"channel": p.channel,
		"text":    text,
	}
	if threadTS != "" {
		payload["thread_ts"] = threadTS
	}
	_, err := p.postMessage(ctx, payload)
	return err
}

func (p *Poster) postMessage(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatSummaryMessage(source, runID string, sum analysis.Summary) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Source:* %s\n", source)
	if runID != "" {
		fmt.Fprintf(&sb, "*Run:* %s\n", runID)
	}
	fmt.Fprintf(&sb, "*Transcripts:* %d (%d failed) | *Dialogues:* %d | *Low confidence:* %d\n\n",
		sum.Transcripts, sum.Failed, sum.Dialogues, sum.Ambiguous)

	counts := sum.SortedTopSteps()
	if len(counts) == 0 {
		sb.WriteString("_No dialogues classified in this run._")
		return sb.String()
	}

	sb.WriteString("*Top step per dialogue*\n")
	for _, c := range counts {
		fmt.Fprintf(&sb, "• %s: %d\n", c.StepName, c.Count)
	}
	if sum.Ambiguous > 0 {
		sb.WriteString("\nLow-confidence dialogues follow in this thread.")
	}
	return sb.String()
}

func formatItemMessage(item ReviewItem) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*%s* dialogue %d\n", item.TranscriptID, item.DialogueIndex+1)
	for _, m := range item.Dialogue.ChatbotMessages {
		fmt.Fprintf(&sb, "> :robot_face: %s\n", truncate(m.Text, maxQuoteLen))
	}
	for _, m := range item.Dialogue.UserMessages {
		fmt.Fprintf(&sb, "> :bust_in_silhouette: %s\n", truncate(m.Text, maxQuoteLen))
	}

	sb.WriteString("*Candidates*\n")
	for i, s := range item.Dialogue.Suggestions {
		fmt.Fprintf(&sb, "%d. %s (%.2f)\n", i+1, s.StepName, s.Confidence)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
