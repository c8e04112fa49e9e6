package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Newrona-pi/voice-interviewer/internal/model"
)

// CreateCandidate inserts a candidate with a fresh invite token. The token
// is what re-booking links are built from.
func (s *Store) CreateCandidate(ctx context.Context, c *model.Candidate) error {
	c.InviteToken = uuid.NewString()
	row := s.db.QueryRow(ctx, `
	INSERT INTO candidates (name, phone, email, question_set_id, invite_token)
	VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		c.Name, c.Phone, c.Email, c.QuestionSetID, c.InviteToken,
	)
	if err := row.Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

// ScheduleInterview creates a scheduled interview for a candidate. The
// snapshot stays empty until the first call attempt materializes it.
func (s *Store) ScheduleInterview(ctx context.Context, candidateID int64, at time.Time) (*model.Interview, error) {
	row := s.db.QueryRow(ctx, `
	INSERT INTO interviews (candidate_id, status, reservation_time)
	VALUES ($1, $2, $3) RETURNING id, created_at`,
		candidateID, model.StatusScheduled, at.UTC(),
	)
	iv := &model.Interview{
		CandidateID:     candidateID,
		Status:          model.StatusScheduled,
		ReservationTime: at.UTC(),
	}
	if err := row.Scan(&iv.ID, &iv.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert interview: %w", err)
	}
	return iv, nil
}
