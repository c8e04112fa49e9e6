package model

import "time"

// InterviewStatus is the lifecycle status of an interview.
type InterviewStatus string

const (
	StatusScheduled           InterviewStatus = "scheduled"
	StatusCalling             InterviewStatus = "calling"
	StatusInProgress          InterviewStatus = "in_progress"
	StatusCompleted           InterviewStatus = "completed"
	StatusInterrupted         InterviewStatus = "interrupted"
	StatusRescheduleRequested InterviewStatus = "reschedule_requested"
	StatusFailed              InterviewStatus = "failed"
)

// Terminal reports whether the automated process is done with this interview.
func (s InterviewStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRescheduleRequested:
		return true
	}
	return false
}

// Stage is the persisted interview stage.
type Stage string

const (
	StageGreeting  Stage = "greeting"
	StageTimeCheck Stage = "time_check"
	StageMainQA    Stage = "main_qa"
	StageReverseQA Stage = "reverse_qa"
	StageEnding    Stage = "ending"
)

// SnapshotQuestion is one entry of the session snapshot: the question script
// as it stood when the call started. Edits to the question bank after this
// point never reach an in-flight call.
type SnapshotQuestion struct {
	QuestionID  int64  `json:"question_id"`
	Text        string `json:"text"`
	MaxDuration int    `json:"max_duration"`
}

// Interview is one scheduled interview attempt chain for a candidate.
type Interview struct {
	ID               int64
	CandidateID      int64
	Status           InterviewStatus
	CurrentStage     Stage
	SessionSnapshot  []SnapshotQuestion // immutable once set
	LastCompletedQID *int64
	ResumeCount      int
	RetryCount       int
	ReservationTime  time.Time // UTC
	CreatedAt        time.Time
}

// ResumeIndex returns the snapshot index the next call should start from.
// A fresh interview starts at 0; a resumed one at the question after the
// last completed. len(snapshot) means all questions are already answered.
func (iv *Interview) ResumeIndex() int {
	if iv.LastCompletedQID == nil {
		return 0
	}
	for i, q := range iv.SessionSnapshot {
		if q.QuestionID == *iv.LastCompletedQID {
			return i + 1
		}
	}
	return 0
}

// AllQuestionsAnswered reports whether the last completed question is the
// final question of the snapshot.
func (iv *Interview) AllQuestionsAnswered() bool {
	if len(iv.SessionSnapshot) == 0 || iv.LastCompletedQID == nil {
		return false
	}
	return iv.SessionSnapshot[len(iv.SessionSnapshot)-1].QuestionID == *iv.LastCompletedQID
}

// Candidate owns contact details and the assigned question set.
// One candidate may have many interviews.
type Candidate struct {
	ID            int64
	Name          string
	Phone         string
	Email         string
	QuestionSetID int64
	InviteToken   string
	CreatedAt     time.Time
}

// QuestionSet is an ordered, named question template.
type QuestionSet struct {
	ID   int64
	Name string
}

// Question belongs to a QuestionSet. During an active call it is only ever
// referenced through the session snapshot, never by live join.
type Question struct {
	ID          int64
	SetID       int64
	Order       int
	Text        string
	MaxDuration int
}

// InterviewReview is one answered question (or one reverse-question turn).
// Rows are append-only; only the asynchronous transcription path back-fills
// Transcript and RecordingRef after creation.
type InterviewReview struct {
	ID              int64
	InterviewID     int64
	QuestionID      *int64 // nil for reverse Q&A turns
	QuestionText    string
	Transcript      string
	RecordingRef    string
	DurationSeconds int
	ComplianceFlag  bool
	CreatedAt       time.Time
}
