package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/stepwise/internal/analysis"
	"github.com/MikeSquared-Agency/stepwise/internal/dialogue"
)

// RunRow is a stored analysis run with all of its results.
type RunRow struct {
	ID          uuid.UUID       `json:"id"`
	Source      string          `json:"source"`
	CreatedAt   time.Time       `json:"created_at"`
	Transcripts int             `json:"transcripts"`
	Failed      int             `json:"failed"`
	Dialogues   int             `json:"dialogues"`
	Ambiguous   int             `json:"ambiguous"`
	Results     []TranscriptRow `json:"results"`
}

type TranscriptRow struct {
	ID           uuid.UUID     `json:"id"`
	TranscriptID string        `json:"transcript_id"`
	Error        string        `json:"error,omitempty"`
	Dialogues    []DialogueRow `json:"dialogues"`
}

type DialogueRow struct {
	ID         uuid.UUID         `json:"id"`
	Ambiguous  bool              `json:"ambiguous"`
	ReviewStep string            `json:"review_step,omitempty"`
	ReviewNote string            `json:"review_note,omitempty"`
	Dialogue   dialogue.Dialogue `json:"dialogue"`
}

// WriteRun persists a batch of analysis results in a single transaction.
// Tables: analysis_runs, transcript_results, dialogues, dialogue_suggestions.
func (s *Store) WriteRun(ctx context.Context, source string, results []analysis.Result) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sum := analysis.Summarize(results)
	runID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO analysis_runs (id, source, transcripts, failed, dialogues, ambiguous, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		runID, source, sum.Transcripts, sum.Failed, sum.Dialogues, sum.Ambiguous,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}

	for pos, res := range results {
		resultID := uuid.New()
		var errText *string
		if res.Err != nil {
			msg := res.Err.Error()
			errText = &msg
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO transcript_results (id, run_id, position, transcript_id, error)
			VALUES ($1, $2, $3, $4, $5)`,
			resultID, runID, pos, res.TranscriptID, errText,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert transcript %s: %w", res.TranscriptID, err)
		}

		ambiguous := make(map[int]bool, len(res.Ambiguous))
		for _, i := range res.Ambiguous {
			ambiguous[i] = true
		}

		for i, d := range res.Dialogues {
			dialogueID := uuid.New()
			_, err = tx.Exec(ctx, `
				INSERT INTO dialogues (id, transcript_result_id, position, chatbot_messages, user_messages, ambiguous)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				dialogueID, resultID, i, texts(d.ChatbotMessages), texts(d.UserMessages), ambiguous[i],
			)
			if err != nil {
				return uuid.Nil, fmt.Errorf("insert dialogue: %w", err)
			}

			for rank, sg := range d.Suggestions {
				_, err = tx.Exec(ctx, `
					INSERT INTO dialogue_suggestions (id, dialogue_id, rank, step_name, confidence)
					VALUES ($1, $2, $3, $4, $5)`,
					uuid.New(), dialogueID, rank, sg.StepName, sg.Confidence,
				)
				if err != nil {
					return uuid.Nil, fmt.Errorf("insert suggestion: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	return runID, nil
}

// GetRun loads a run and its transcripts, dialogues and suggestions in
// their original order. It returns ErrNotFound for an unknown id.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*RunRow, error) {
	run := RunRow{Results: []TranscriptRow{}}
	err := s.pool.QueryRow(ctx, `
		SELECT id, source, created_at, transcripts, failed, dialogues, ambiguous
		FROM analysis_runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.Source, &run.CreatedAt, &run.Transcripts, &run.Failed, &run.Dialogues, &run.Ambiguous)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	resultIdx := make(map[uuid.UUID]int)
	rows, err := s.pool.Query(ctx, `
		SELECT id, transcript_id, COALESCE(error, '')
		FROM transcript_results WHERE run_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	for rows.Next() {
		t := TranscriptRow{Dialogues: []DialogueRow{}}
		if err := rows.Scan(&t.ID, &t.TranscriptID, &t.Error); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		resultIdx[t.ID] = len(run.Results)
		run.Results = append(run.Results, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcripts: %w", err)
	}

	type dialogueRef struct{ result, pos int }
	dialogueIdx := make(map[uuid.UUID]dialogueRef)
	rows, err = s.pool.Query(ctx, `
		SELECT d.id, d.transcript_result_id, d.chatbot_messages, d.user_messages, d.ambiguous,
		       COALESCE(d.review_step, ''), COALESCE(d.review_note, '')
		FROM dialogues d
		JOIN transcript_results tr ON tr.id = d.transcript_result_id
		WHERE tr.run_id = $1
		ORDER BY tr.position, d.position`, id)
	if err != nil {
		return nil, fmt.Errorf("query dialogues: %w", err)
	}
	for rows.Next() {
		var (
			row              DialogueRow
			resultID         uuid.UUID
			chatbot, userMsg []string
		)
		if err := rows.Scan(&row.ID, &resultID, &chatbot, &userMsg, &row.Ambiguous, &row.ReviewStep, &row.ReviewNote); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan dialogue: %w", err)
		}
		row.Dialogue = dialogue.Dialogue{
			ChatbotMessages: messages(dialogue.RoleResponse, chatbot),
			UserMessages:    messages(dialogue.RoleRequest, userMsg),
		}
		ri := resultIdx[resultID]
		dialogueIdx[row.ID] = dialogueRef{result: ri, pos: len(run.Results[ri].Dialogues)}
		run.Results[ri].Dialogues = append(run.Results[ri].Dialogues, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dialogues: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT s.dialogue_id, s.step_name, s.confidence
		FROM dialogue_suggestions s
		JOIN dialogues d ON d.id = s.dialogue_id
		JOIN transcript_results tr ON tr.id = d.transcript_result_id
		WHERE tr.run_id = $1
		ORDER BY s.dialogue_id, s.rank`, id)
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			dialogueID uuid.UUID
			sg         dialogue.Suggestion
		)
		if err := rows.Scan(&dialogueID, &sg.StepName, &sg.Confidence); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		ref, ok := dialogueIdx[dialogueID]
		if !ok {
			continue
		}
		d := &run.Results[ref.result].Dialogues[ref.pos].Dialogue
		d.Suggestions = append(d.Suggestions, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestions: %w", err)
	}

	return &run, nil
}

func texts(msgs []dialogue.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func messages(role dialogue.Role, texts []string) []dialogue.Message {
	out := make([]dialogue.Message, len(texts))
	for i, t := range texts {
		out[i] = dialogue.Message{Role: role, Text: t}
	}
	return out
}
