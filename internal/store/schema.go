package store

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup, the same way the original
// deployment created its tables on boot.
const schema = `
CREATE TABLE IF NOT EXISTS question_sets (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS questions (
	id           BIGSERIAL PRIMARY KEY,
	set_id       BIGINT NOT NULL REFERENCES question_sets(id),
	ord          INT NOT NULL,
	text         TEXT NOT NULL,
	max_duration INT NOT NULL DEFAULT 120,
	UNIQUE (set_id, ord)
);

CREATE TABLE IF NOT EXISTS candidates (
	id              BIGSERIAL PRIMARY KEY,
	name            TEXT NOT NULL,
	phone           TEXT NOT NULL,
	email           TEXT NOT NULL DEFAULT '',
	question_set_id BIGINT NOT NULL REFERENCES question_sets(id),
	invite_token    TEXT NOT NULL UNIQUE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS interviews (
	id                  BIGSERIAL PRIMARY KEY,
	candidate_id        BIGINT NOT NULL REFERENCES candidates(id),
	status              TEXT NOT NULL DEFAULT 'scheduled',
	current_stage       TEXT NOT NULL DEFAULT 'greeting',
	session_snapshot    JSONB,
	last_completed_q_id BIGINT,
	resume_count        INT NOT NULL DEFAULT 0,
	retry_count         INT NOT NULL DEFAULT 0,
	reservation_time    TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interviews_due
	ON interviews (status, reservation_time);

CREATE TABLE IF NOT EXISTS interview_reviews (
	id               BIGSERIAL PRIMARY KEY,
	interview_id     BIGINT NOT NULL REFERENCES interviews(id),
	question_id      BIGINT,
	question_text    TEXT NOT NULL,
	transcript       TEXT NOT NULL DEFAULT '',
	recording_ref    TEXT NOT NULL DEFAULT '',
	duration_seconds INT NOT NULL DEFAULT 0,
	compliance_flag  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reviews_interview
	ON interview_reviews (interview_id);
`

// EnsureSchema creates all tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
