// Package scheduler decides when to dial and what to do when a call ends
// abnormally: the periodic dial loop and the status-callback reconciliation.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/Newrona-pi/voice-interviewer/internal/model"
)

// Store is the slice of the session store the scheduler needs.
type Store interface {
	DueInterviews(ctx context.Context, now time.Time) ([]*model.Interview, error)
	ClaimForDialing(ctx context.Context, id int64) (bool, error)
	ReleaseDialClaim(ctx context.Context, id int64) error
	GetInterview(ctx context.Context, id int64) (*model.Interview, error)
	GetCandidate(ctx context.Context, id int64) (*model.Candidate, error)
	SetStatus(ctx context.Context, id int64, status model.InterviewStatus) error
	Reschedule(ctx context.Context, id int64, at time.Time, resumeCount, retryCount int) error
}

// Dialer places outbound calls.
type Dialer interface {
	PlaceCall(ctx context.Context, interviewID int64, phone string) error
}

// Notifier reaches the candidate outside the call.
type Notifier interface {
	InterviewFailed(ctx context.Context, cand *model.Candidate, interviewID int64) error
}

// Config bounds the retry machinery.
type Config struct {
	// Interval between dial-loop ticks.
	Interval time.Duration
	// ResumeDelay before re-dialing a dropped call.
	ResumeDelay time.Duration
	// RetryDelay before re-dialing a call that never connected.
	RetryDelay time.Duration
	// MaxResume and MaxRetry are hard caps; exceeding either yields a
	// terminal failed status, never silent abandonment.
	MaxResume int
	MaxRetry  int
}

// DefaultConfig matches production behavior.
func DefaultConfig() Config {
	return Config{
		Interval:    60 * time.Second,
		ResumeDelay: time.Minute,
		RetryDelay:  time.Minute,
		MaxResume:   3,
		MaxRetry:    3,
	}
}

// Scheduler owns the dial loop and reconciliation. It shares no memory with
// active call sessions; the store's scheduled->calling compare-and-set is the
// only coordination point.
type Scheduler struct {
	store    Store
	dialer   Dialer
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

func New(store Store, dialer Dialer, notifier Notifier, cfg Config) *Scheduler {
	return &Scheduler{store: store, dialer: dialer, notifier: notifier, cfg: cfg, now: time.Now}
}

// Run drives the dial loop until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("scheduler: dial loop started (interval %s)", s.cfg.Interval)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler: dial loop stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dials every interview due at this moment. A failure on one interview
// never affects the others.
func (s *Scheduler) Tick(ctx context.Context) {
	due, err := s.store.DueInterviews(ctx, s.now().UTC())
	if err != nil {
		log.Printf("scheduler: select due interviews: %v", err)
		return
	}
	for _, iv := range due {
		s.dialOne(ctx, iv)
	}
}

func (s *Scheduler) dialOne(ctx context.Context, iv *model.Interview) {
	claimed, err := s.store.ClaimForDialing(ctx, iv.ID)
	if err != nil {
		log.Printf("scheduler: claim interview %d: %v", iv.ID, err)
		return
	}
	if !claimed {
		// Another tick got there first.
		return
	}
	cand, err := s.store.GetCandidate(ctx, iv.CandidateID)
	if err != nil {
		log.Printf("scheduler: candidate %d for interview %d: %v", iv.CandidateID, iv.ID, err)
		s.release(ctx, iv.ID)
		return
	}
	if err := s.dialer.PlaceCall(ctx, iv.ID, cand.Phone); err != nil {
		log.Printf("scheduler: dial interview %d: %v", iv.ID, err)
		s.release(ctx, iv.ID)
		return
	}
	log.Printf("scheduler: dialed interview %d (candidate %d)", iv.ID, iv.CandidateID)
}

func (s *Scheduler) release(ctx context.Context, id int64) {
	if err := s.store.ReleaseDialClaim(ctx, id); err != nil {
		log.Printf("scheduler: release claim %d: %v", id, err)
	}
}

// connected reports whether the provider call status means the callee
// actually picked up.
func connected(callStatus string) bool {
	switch callStatus {
	case "busy", "no-answer", "failed", "canceled":
		return false
	}
	return true
}

// Reconcile applies the end-of-call decision table when the provider reports
// a final call status. Terminal interview statuses are never overwritten.
func (s *Scheduler) Reconcile(ctx context.Context, interviewID int64, callStatus string) error {
	iv, err := s.store.GetInterview(ctx, interviewID)
	if err != nil {
		return err
	}
	if iv.Status.Terminal() {
		log.Printf("scheduler: interview %d already %s, callback %q ignored", iv.ID, iv.Status, callStatus)
		return nil
	}

	if !connected(callStatus) {
		return s.retry(ctx, iv, callStatus)
	}

	if iv.AllQuestionsAnswered() {
		// The call dropped after the last question but before the stage
		// machine could mark completion.
		log.Printf("scheduler: interview %d finished all questions, marking completed", iv.ID)
		return s.store.SetStatus(ctx, iv.ID, model.StatusCompleted)
	}
	return s.resume(ctx, iv)
}

// resume handles a call that connected but dropped mid-interview.
func (s *Scheduler) resume(ctx context.Context, iv *model.Interview) error {
	if iv.ResumeCount >= s.cfg.MaxResume {
		log.Printf("scheduler: interview %d exhausted %d resumes, failing", iv.ID, iv.ResumeCount)
		return s.fail(ctx, iv)
	}
	at := s.now().Add(s.cfg.ResumeDelay)
	log.Printf("scheduler: interview %d dropped mid-call, resume %d/%d at %s",
		iv.ID, iv.ResumeCount+1, s.cfg.MaxResume, at.Format(time.RFC3339))
	if err := s.store.SetStatus(ctx, iv.ID, model.StatusInterrupted); err != nil {
		return err
	}
	return s.store.Reschedule(ctx, iv.ID, at, iv.ResumeCount+1, iv.RetryCount)
}

// retry handles a call that never connected.
func (s *Scheduler) retry(ctx context.Context, iv *model.Interview, callStatus string) error {
	if iv.RetryCount >= s.cfg.MaxRetry {
		log.Printf("scheduler: interview %d not reachable after %d tries (%s), failing", iv.ID, iv.RetryCount, callStatus)
		return s.fail(ctx, iv)
	}
	at := s.now().Add(s.cfg.RetryDelay)
	log.Printf("scheduler: interview %d %s, retry %d/%d at %s",
		iv.ID, callStatus, iv.RetryCount+1, s.cfg.MaxRetry, at.Format(time.RFC3339))
	return s.store.Reschedule(ctx, iv.ID, at, iv.ResumeCount, iv.RetryCount+1)
}

func (s *Scheduler) fail(ctx context.Context, iv *model.Interview) error {
	if err := s.store.SetStatus(ctx, iv.ID, model.StatusFailed); err != nil {
		return err
	}
	cand, err := s.store.GetCandidate(ctx, iv.CandidateID)
	if err != nil {
		log.Printf("scheduler: candidate %d for failure notice: %v", iv.CandidateID, err)
		return nil
	}
	if err := s.notifier.InterviewFailed(ctx, cand, iv.ID); err != nil {
		log.Printf("scheduler: notify candidate %d: %v", cand.ID, err)
	}
	return nil
}
