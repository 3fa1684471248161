package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UpdateDialogueReview records the step a reviewer assigned to a dialogue.
func (s *Store) UpdateDialogueReview(ctx context.Context, dialogueID uuid.UUID, stepName, note string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dialogues SET review_step = $1, review_note = $2, reviewed_at = now()
		WHERE id = $3`,
		stepName, note, dialogueID,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReviewStats counts reviewed dialogues where the reviewer agreed with the
// top suggestion.
type ReviewStats struct {
	Reviewed int `json:"reviewed"`
	Agreed   int `json:"agreed"`
}

// GetReviewStats compares reviewer verdicts against the rank-0 suggestion
// across every stored run.
func (s *Store) GetReviewStats(ctx context.Context) (ReviewStats, error) {
	var st ReviewStats
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE s.step_name = d.review_step)
		FROM dialogues d
		LEFT JOIN dialogue_suggestions s ON s.dialogue_id = d.id AND s.rank = 0
		WHERE d.review_step IS NOT NULL`,
	).Scan(&st.Reviewed, &st.Agreed)
	if err != nil {
		return ReviewStats{}, fmt.Errorf("review stats: %w", err)
	}
	return st, nil
}
