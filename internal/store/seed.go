package store

import (
	"context"
	"fmt"

	"github.com/Newrona-pi/voice-interviewer/internal/model"
)

// SeedQuestionSet inserts a named question set with its ordered questions.
// An existing set with the same name is left untouched; in-flight interviews
// only ever read the session snapshot anyway.
func (s *Store) SeedQuestionSet(ctx context.Context, name string, questions []model.Question) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var setID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO question_sets (name) VALUES ($1)
		 ON CONFLICT (name) DO NOTHING RETURNING id`, name,
	).Scan(&setID)
	if err != nil {
		// No row returned means the set already exists; keep it as-is.
		if scanErr := tx.QueryRow(ctx,
			`SELECT id FROM question_sets WHERE name = $1`, name,
		).Scan(&setID); scanErr != nil {
			return 0, fmt.Errorf("resolve question set %q: %w", name, scanErr)
		}
		return setID, tx.Commit(ctx)
	}

	for i, q := range questions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO questions (set_id, ord, text, max_duration) VALUES ($1, $2, $3, $4)`,
			setID, i, q.Text, q.MaxDuration,
		); err != nil {
			return 0, fmt.Errorf("insert question %d: %w", i, err)
		}
	}
	return setID, tx.Commit(ctx)
}
