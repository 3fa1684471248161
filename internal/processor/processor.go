package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/stepwise/internal/analysis"
	"github.com/MikeSquared-Agency/stepwise/internal/dialogue"
	"github.com/MikeSquared-Agency/stepwise/internal/hermes"
	"github.com/MikeSquared-Agency/stepwise/internal/slack"
	"github.com/MikeSquared-Agency/stepwise/internal/store"
	"github.com/MikeSquared-Agency/stepwise/internal/transcript"
)

// maxReviewItems caps how many low-confidence dialogues go to Slack per run.
const maxReviewItems = 25

// Publisher emits events on the bus.
type Publisher interface {
	Publish(subject string, data any) error
}

// RunStore persists analysis runs and reviewer verdicts.
type RunStore interface {
	WriteRun(ctx context.Context, source string, results []analysis.Result) (uuid.UUID, error)
	GetRun(ctx context.Context, id uuid.UUID) (*store.RunRow, error)
	UpdateDialogueReview(ctx context.Context, dialogueID uuid.UUID, stepName, note string) error
}

// ReviewPoster posts review threads for human auditing.
type ReviewPoster interface {
	PostReviewThread(ctx context.Context, source, runID string, sum analysis.Summary, items []slack.ReviewItem) (*slack.ReviewThread, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

// Processor runs uploaded transcripts through analysis and handles the
// reviewer feedback that follows. Store, publisher and poster are optional.
type Processor struct {
	analyzer *analysis.Analyzer
	store    RunStore
	hermes   Publisher
	slack    ReviewPoster
	client   *http.Client
	logger   *slog.Logger

	mu           sync.Mutex
	pendingItems map[string]*pendingItem // keyed by thread reply TS
}

// pendingItem maps a Slack thread reply to the dialogue it shows.
type pendingItem struct {
	Source       string
	TranscriptID string
	DialogueID   uuid.UUID
	Suggestions  []dialogue.Suggestion
}

func New(a *analysis.Analyzer, s RunStore, h Publisher, sl ReviewPoster, logger *slog.Logger) *Processor {
	return &Processor{
		analyzer:     a,
		store:        s,
		hermes:       h,
		slack:        sl,
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		pendingItems: make(map[string]*pendingItem),
	}
}

// HandleTranscriptUploaded is the NATS handler for stepwise.transcript.uploaded.
func (p *Processor) HandleTranscriptUploaded(subject string, data []byte) {
	ctx := context.Background()

	evt, err := hermes.ParseTranscriptUploaded(data)
	if err != nil {
		p.logger.Error("failed to parse upload event", "subject", subject, "error", err)
		return
	}

	ts, err := p.loadTranscripts(ctx, evt)
	if err != nil {
		p.logger.Error("failed to load transcripts", "source", evt.Source, "path", evt.Path, "url", evt.URL, "error", err)
		return
	}

	p.logger.Info("processing upload", "source", evt.Source, "transcripts", len(ts))
	results := p.analyzer.AnalyzeBatch(ctx, ts)
	p.Process(ctx, evt.Source, results)
}

// Process persists, publishes and posts for review an analysed batch. It
// returns the stored run id, or uuid.Nil when nothing was stored.
func (p *Processor) Process(ctx context.Context, source string, results []analysis.Result) uuid.UUID {
	runID := uuid.Nil
	if p.store != nil {
		id, err := p.store.WriteRun(ctx, source, results)
		if err != nil {
			p.logger.Error("persistence failed", "source", source, "error", err)
		} else {
			runID = id
		}
	}

	runStr := ""
	if runID != uuid.Nil {
		runStr = runID.String()
	}

	if p.hermes != nil {
		for _, r := range results {
			if err := p.hermes.Publish(hermes.SubjectTranscriptAnalyzed, analyzedEvent(runStr, source, r)); err != nil {
				p.logger.Error("failed to publish analysis", "transcript_id", r.TranscriptID, "error", err)
			}
		}
	}

	sum := analysis.Summarize(results)
	if p.slack != nil && sum.Transcripts > 0 {
		p.postReview(ctx, source, runID, sum, results)
	}

	p.logger.Info("upload processed",
		"source", source,
		"run_id", runStr,
		"transcripts", sum.Transcripts,
		"failed", sum.Failed,
		"dialogues", sum.Dialogues,
		"ambiguous", sum.Ambiguous,
	)
	return runID
}

func analyzedEvent(runID, source string, r analysis.Result) hermes.TranscriptAnalyzed {
	evt := hermes.TranscriptAnalyzed{
		RunID:        runID,
		Source:       source,
		TranscriptID: r.TranscriptID,
	}
	if r.Err != nil {
		evt.Error = r.Err.Error()
		return evt
	}
	sum := analysis.Summarize([]analysis.Result{r})
	evt.Dialogues = sum.Dialogues
	evt.Ambiguous = sum.Ambiguous
	evt.TopSteps = sum.TopSteps
	return evt
}

func (p *Processor) postReview(ctx context.Context, source string, runID uuid.UUID, sum analysis.Summary, results []analysis.Result) {
	var (
		items   []slack.ReviewItem
		pending []*pendingItem
	)
	ids := p.dialogueIDs(ctx, runID)

	for ri, r := range results {
		for _, di := range r.Ambiguous {
			if len(items) == maxReviewItems {
				break
			}
			d := r.Dialogues[di]
			items = append(items, slack.ReviewItem{TranscriptID: r.TranscriptID, DialogueIndex: di, Dialogue: d})
			pi := &pendingItem{
				Source:       source,
				TranscriptID: r.TranscriptID,
				Suggestions:  d.Suggestions,
			}
			if ri < len(ids) && di < len(ids[ri]) {
				pi.DialogueID = ids[ri][di]
			}
			pending = append(pending, pi)
		}
	}

	runStr := ""
	if runID != uuid.Nil {
		runStr = runID.String()
	}
	thread, err := p.slack.PostReviewThread(ctx, source, runStr, sum, items)
	if err != nil {
		p.logger.Error("slack post failed", "source", source, "error", err)
		return
	}

	p.mu.Lock()
	for _, item := range thread.Items {
		if item.Idx < len(pending) {
			p.pendingItems[item.TS] = pending[item.Idx]
		}
	}
	p.mu.Unlock()
}

// dialogueIDs returns stored dialogue ids indexed by result then dialogue.
func (p *Processor) dialogueIDs(ctx context.Context, runID uuid.UUID) [][]uuid.UUID {
	if p.store == nil || runID == uuid.Nil {
		return nil
	}
	run, err := p.store.GetRun(ctx, runID)
	if err != nil {
		p.logger.Warn("failed to load stored run", "run_id", runID, "error", err)
		return nil
	}
	out := make([][]uuid.UUID, len(run.Results))
	for i, tr := range run.Results {
		for _, d := range tr.Dialogues {
			out[i] = append(out[i], d.ID)
		}
	}
	return out
}

// HandleReaction processes Slack reaction feedback from slack-forwarder via NATS.
// Reactions on review thread replies settle the step for that dialogue.
func (p *Processor) HandleReaction(subject string, data []byte) {
	ctx := context.Background()

	evt, err := slack.ParseReactionEvent(data, p.logger)
	if err != nil {
		p.logger.Error("failed to parse reaction", "error", err)
		return
	}

	reaction := slack.ParseReaction(evt.Reaction)
	if reaction.Verdict == slack.VerdictUnknown {
		return
	}

	p.mu.Lock()
	item, ok := p.pendingItems[evt.MessageTS]
	if !ok {
		p.mu.Unlock()
		return
	}
	if reaction.Verdict == slack.VerdictPicked && reaction.Candidate >= len(item.Suggestions) {
		p.mu.Unlock()
		p.logger.Debug("reaction picks a missing candidate", "candidate", reaction.Candidate+1, "message_ts", evt.MessageTS)
		return
	}
	delete(p.pendingItems, evt.MessageTS)
	p.mu.Unlock()

	p.logger.Info("processing review reaction",
		"reaction", evt.Reaction,
		"verdict", string(reaction.Verdict),
		"transcript_id", item.TranscriptID,
		"dialogue_id", item.DialogueID,
	)

	if reaction.Verdict == slack.VerdictSkipped {
		return
	}

	stepName := ""
	if reaction.Candidate >= 0 && reaction.Candidate < len(item.Suggestions) {
		stepName = item.Suggestions[reaction.Candidate].StepName
	}

	if p.store != nil && item.DialogueID != uuid.Nil {
		if err := p.store.UpdateDialogueReview(ctx, item.DialogueID, stepName, string(reaction.Verdict)); err != nil {
			p.logger.Error("failed to update dialogue review", "dialogue_id", item.DialogueID, "error", err)
		}
	}

	if p.hermes != nil {
		reviewed := hermes.DialogueReviewed{
			Verdict:    string(reaction.Verdict),
			StepName:   stepName,
			ReviewerID: evt.UserID,
		}
		if item.DialogueID != uuid.Nil {
			reviewed.DialogueID = item.DialogueID.String()
		}
		if len(item.Suggestions) > 0 {
			reviewed.Suggested = item.Suggestions[0].StepName
		}
		if err := p.hermes.Publish(hermes.SubjectDialogueReviewed, reviewed); err != nil {
			p.logger.Error("failed to publish review", "error", err)
		}
	}

	if reaction.Verdict == slack.VerdictRejected && p.slack != nil {
		if err := p.slack.PostThread(ctx, evt.MessageTS, "None of the candidates fit? Reply with the step this dialogue should be."); err != nil {
			p.logger.Error("failed to post correction thread", "error", err)
		}
	}
}

// PendingReviews reports how many review items still await a reaction.
func (p *Processor) PendingReviews() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pendingItems)
}

func (p *Processor) loadTranscripts(ctx context.Context, evt *hermes.TranscriptUploaded) ([]transcript.Transcript, error) {
	// Prefer the transcript embedded in the event payload.
	if len(evt.Transcript) > 0 {
		return transcript.Parse(bytes.NewReader(evt.Transcript))
	}
	if evt.Path != "" {
		return transcript.ParseFile(evt.Path)
	}
	return p.fetchTranscripts(ctx, evt.URL)
}

func (p *Processor) fetchTranscripts(ctx context.Context, url string) ([]transcript.Transcript, error) {
	if url == "" {
		return nil, errors.New("no transcript source in event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build transcript request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcript request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("transcript fetch returned %d for %s", resp.StatusCode, url)
	}

	return transcript.Parse(resp.Body)
}
