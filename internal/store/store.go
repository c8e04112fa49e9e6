// Package store is the session store for interviews, candidates, question
// sets and review records, backed by PostgreSQL through pgx.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Newrona-pi/voice-interviewer/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps a pgx connection pool.
type Store struct {
	db *pgxpool.Pool
}

// Connect opens a pgx pool against the given DATABASE_URL.
func Connect(ctx context.Context, dbURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MaxConnLifetime = time.Hour
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &Store{db: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.db.Close() }

const interviewColumns = `
	id, candidate_id, status, current_stage, session_snapshot,
	last_completed_q_id, resume_count, retry_count, reservation_time, created_at`

func scanInterview(row pgx.Row) (*model.Interview, error) {
	var iv model.Interview
	var snapshot []byte
	err := row.Scan(
		&iv.ID, &iv.CandidateID, &iv.Status, &iv.CurrentStage, &snapshot,
		&iv.LastCompletedQID, &iv.ResumeCount, &iv.RetryCount, &iv.ReservationTime, &iv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan interview: %w", err)
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &iv.SessionSnapshot); err != nil {
			return nil, fmt.Errorf("decode session snapshot: %w", err)
		}
	}
	return &iv, nil
}

// GetInterview fetches one interview by id.
func (s *Store) GetInterview(ctx context.Context, id int64) (*model.Interview, error) {
	q := `SELECT ` + interviewColumns + ` FROM interviews WHERE id = $1`
	return scanInterview(s.db.QueryRow(ctx, q, id))
}

// DueInterviews lists interviews still scheduled whose reservation time has
// passed.
func (s *Store) DueInterviews(ctx context.Context, now time.Time) ([]*model.Interview, error) {
	q := `SELECT ` + interviewColumns + `
	FROM interviews WHERE status = $1 AND reservation_time <= $2 ORDER BY reservation_time`
	rows, err := s.db.Query(ctx, q, model.StatusScheduled, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("select due interviews: %w", err)
	}
	defer rows.Close()
	var out []*model.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// ClaimForDialing atomically flips scheduled -> calling. It returns false if
// the interview was already claimed, which is the guard against double
// dialing when scheduler ticks overlap with slow dial latency.
func (s *Store) ClaimForDialing(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE interviews SET status = $1 WHERE id = $2 AND status = $3`,
		model.StatusCalling, id, model.StatusScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("claim interview %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseDialClaim puts a claimed interview back to scheduled after a failed
// dial request so the next scheduler tick retries it.
func (s *Store) ReleaseDialClaim(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE interviews SET status = $1 WHERE id = $2 AND status = $3`,
		model.StatusScheduled, id, model.StatusCalling,
	)
	if err != nil {
		return fmt.Errorf("release dial claim %d: %w", id, err)
	}
	return nil
}

// SetStatus updates the interview status.
func (s *Store) SetStatus(ctx context.Context, id int64, status model.InterviewStatus) error {
	_, err := s.db.Exec(ctx, `UPDATE interviews SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set status %d: %w", id, err)
	}
	return nil
}

// SetStage persists the current live stage.
func (s *Store) SetStage(ctx context.Context, id int64, stage model.Stage) error {
	_, err := s.db.Exec(ctx, `UPDATE interviews SET current_stage = $1 WHERE id = $2`, stage, id)
	if err != nil {
		return fmt.Errorf("set stage %d: %w", id, err)
	}
	return nil
}

// MaterializeSnapshot captures the question script once, at first call
// attempt. A snapshot already present is never overwritten.
func (s *Store) MaterializeSnapshot(ctx context.Context, id int64, questions []model.SnapshotQuestion) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.Exec(ctx, `
	UPDATE interviews
	SET session_snapshot = $1, status = $2, current_stage = $3
	WHERE id = $4 AND session_snapshot IS NULL`,
		data, model.StatusInProgress, model.StageGreeting, id,
	)
	if err != nil {
		return fmt.Errorf("materialize snapshot %d: %w", id, err)
	}
	return nil
}

// Reschedule sets the next reservation time and counters after a resume or
// retry decision.
func (s *Store) Reschedule(ctx context.Context, id int64, at time.Time, resumeCount, retryCount int) error {
	_, err := s.db.Exec(ctx, `
	UPDATE interviews
	SET status = $1, reservation_time = $2, resume_count = $3, retry_count = $4
	WHERE id = $5`,
		model.StatusScheduled, at.UTC(), resumeCount, retryCount, id,
	)
	if err != nil {
		return fmt.Errorf("reschedule %d: %w", id, err)
	}
	return nil
}

// SaveQuestionProgress inserts the review row for an answered question and
// advances last_completed_q_id in one transaction, so a resumed call picks
// up the most recently committed progress even after a crash mid-call.
func (s *Store) SaveQuestionProgress(ctx context.Context, rev *model.InterviewReview) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin progress tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertReview(ctx, tx, rev); err != nil {
		return err
	}
	if rev.QuestionID != nil {
		_, err = tx.Exec(ctx,
			`UPDATE interviews SET last_completed_q_id = $1 WHERE id = $2`,
			*rev.QuestionID, rev.InterviewID,
		)
		if err != nil {
			return fmt.Errorf("advance last_completed_q_id: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// SaveReview inserts a review row without touching interview progress
// (reverse Q&A turns).
func (s *Store) SaveReview(ctx context.Context, rev *model.InterviewReview) error {
	return insertReview(ctx, s.db, rev)
}

func insertReview(ctx context.Context, db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, rev *model.InterviewReview) error {
	row := db.QueryRow(ctx, `
	INSERT INTO interview_reviews (
		interview_id, question_id, question_text, transcript,
		recording_ref, duration_seconds, compliance_flag
	) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		rev.InterviewID, rev.QuestionID, rev.QuestionText, rev.Transcript,
		rev.RecordingRef, rev.DurationSeconds, rev.ComplianceFlag,
	)
	if err := row.Scan(&rev.ID, &rev.CreatedAt); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// BackfillTranscription runs the asynchronous transcription-completion
// write-back: the recording reference is attached to every review of the
// interview, and reviews whose live transcript came back empty receive the
// full-call transcript. This is the only post-insert mutation reviews see.
func (s *Store) BackfillTranscription(ctx context.Context, interviewID int64, recordingRef, fullTranscript string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin backfill tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE interview_reviews SET recording_ref = $1 WHERE interview_id = $2`,
		recordingRef, interviewID,
	); err != nil {
		return fmt.Errorf("backfill recording ref: %w", err)
	}
	if fullTranscript != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE interview_reviews SET transcript = $1 WHERE interview_id = $2 AND transcript = ''`,
			fullTranscript, interviewID,
		); err != nil {
			return fmt.Errorf("backfill transcript: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GetCandidate fetches one candidate by id.
func (s *Store) GetCandidate(ctx context.Context, id int64) (*model.Candidate, error) {
	row := s.db.QueryRow(ctx, `
	SELECT id, name, phone, email, question_set_id, invite_token, created_at
	FROM candidates WHERE id = $1`, id)
	var c model.Candidate
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.QuestionSetID, &c.InviteToken, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan candidate: %w", err)
	}
	return &c, nil
}

// QuestionsForSet lists the ordered questions of a set.
func (s *Store) QuestionsForSet(ctx context.Context, setID int64) ([]model.Question, error) {
	rows, err := s.db.Query(ctx, `
	SELECT id, set_id, ord, text, max_duration
	FROM questions WHERE set_id = $1 ORDER BY ord`, setID)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	defer rows.Close()
	var out []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SetID, &q.Order, &q.Text, &q.MaxDuration); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
