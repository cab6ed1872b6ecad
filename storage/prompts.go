// Package storage holds the relational persistence this module delegates
// to Postgres instead of Nakama's key-value storage engine: the prompt
// library is shared, curated, externally seeded data (spec.md §1's
// "static prompt library seeding" is out of scope as a component this
// module builds), so it lives in its own table rather than one more
// system-owned Nakama storage object.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PromptStore implements engine.PromptProvider against a "prompts" table
// (original_source/backend/models/prompt.py): prompt_id, text, category,
// usage_count, enabled. This module only reads a random enabled row and
// increments usage_count — seeding/curation happens outside this module.
type PromptStore struct {
	db *sql.DB
}

func NewPromptStore(db *sql.DB) *PromptStore {
	return &PromptStore{db: db}
}

// RandomEnabled draws one uniformly random enabled prompt. Postgres's
// TABLESAMPLE would scale better than ORDER BY random() at large table
// sizes, but the prompt library is small and curated, and ORDER BY
// random() is exact where TABLESAMPLE is only approximate.
func (s *PromptStore) RandomEnabled(ctx context.Context) (id uuid.UUID, text string, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT prompt_id, text FROM prompts
		WHERE enabled = true
		ORDER BY random()
		LIMIT 1
	`)
	var idStr string
	if err := row.Scan(&idStr, &text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, "", false, nil
		}
		return uuid.Nil, "", false, err
	}
	parsed, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, "", false, err
	}
	return parsed, text, true, nil
}

func (s *PromptStore) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE prompts SET usage_count = usage_count + 1 WHERE prompt_id = $1`, id.String())
	return err
}

// RecordFeedback implements the supplemented SubmitPromptFeedback RPC,
// grounded on original_source/backend/models/prompt_feedback.py's
// player+round uniqueness constraint — ON CONFLICT DO NOTHING makes a
// repeat submission for the same round a no-op rather than an error.
func (s *PromptStore) RecordFeedback(ctx context.Context, playerID string, promptID, roundID uuid.UUID, feedbackType string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompt_feedback (feedback_id, player_id, prompt_id, round_id, feedback_type, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (player_id, round_id) DO NOTHING
	`, uuid.New().String(), playerID, promptID.String(), roundID.String(), feedbackType)
	return err
}
