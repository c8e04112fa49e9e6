// Package interview turns finalized caller utterances into script
// progression: stage transitions, question advancement and compliance-tagged
// review records.
package interview

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Newrona-pi/voice-interviewer/internal/model"
)

// Responder is the slice of the speech session the machine speaks through.
type Responder interface {
	CreateResponse(instructions string) error
}

// Store is the slice of the session store the machine persists through.
type Store interface {
	SaveQuestionProgress(ctx context.Context, rev *model.InterviewReview) error
	SaveReview(ctx context.Context, rev *model.InterviewReview) error
	SetStatus(ctx context.Context, id int64, status model.InterviewStatus) error
	SetStage(ctx context.Context, id int64, stage model.Stage) error
}

// Policy holds named behavioral switches of the stage machine.
type Policy struct {
	// AmbiguousIsYes treats a time-check answer that matches neither the
	// affirmative nor the negative token set as an affirmative. This
	// mirrors the production behavior; set false to keep the caller in the
	// time check until an explicit answer arrives.
	AmbiguousIsYes bool
}

// DefaultPolicy matches production behavior.
func DefaultPolicy() Policy { return Policy{AmbiguousIsYes: true} }

var (
	affirmativeTokens = []string{"はい", "大丈夫", "お願いします"}
	negativeTokens    = []string{"いいえ", "無理", "できません"}
	finishedTokens    = []string{"以上です", "終わり"}
	noMoreTokens      = []string{"ない", "ありません", "結構です"}
)

type event int

const (
	eventUtterance event = iota
	eventAffirmative
	eventNegative
	eventFinished
	eventNoMore
)

func (e event) String() string {
	switch e {
	case eventAffirmative:
		return "affirmative"
	case eventNegative:
		return "negative"
	case eventFinished:
		return "finished"
	case eventNoMore:
		return "no_more"
	default:
		return "utterance"
	}
}

type action func(ctx context.Context, m *Machine, full string) error

// transitions is the explicit state table: (stage, event) -> action.
// A (stage, event) pair absent from the table is rejected and logged, except
// for the documented defaults handled in OnUserTranscript.
var transitions = map[model.Stage]map[event]action{
	model.StageTimeCheck: {
		eventAffirmative: actBeginQuestions,
		eventNegative:    actDeclineAndReschedule,
	},
	model.StageMainQA: {
		eventFinished: actCloseQuestion,
	},
	model.StageReverseQA: {
		eventNoMore:    actFinishInterview,
		eventUtterance: actReverseTurn,
	},
}

// Machine is the per-call stage state machine. It is driven by two loops
// in strict sequence: Start runs once on the telephony stream reader when
// the media stream opens, and every later event arrives on the realtime
// session's read loop, which cannot observe a transcript before Start has
// written the opening instruction. The machine carries no locking and is
// not safe for any other concurrent use.
type Machine struct {
	interview *model.Interview
	snapshot  []model.SnapshotQuestion
	ai        Responder
	store     Store
	topics    TopicExtractor
	policy    Policy

	stage   model.Stage
	qIndex  int
	pending []string // accumulated utterance fragments of the current turn

	questionAskedAt time.Time
	resumed         bool
}

// New builds a machine for one call. A missing snapshot is a data error the
// caller must turn into a spoken error message and hangup.
func New(iv *model.Interview, ai Responder, store Store, topics TopicExtractor, policy Policy) (*Machine, error) {
	if len(iv.SessionSnapshot) == 0 {
		return nil, fmt.Errorf("interview %d has no session snapshot", iv.ID)
	}
	if topics == nil {
		topics = KeywordTopicExtractor{}
	}
	return &Machine{
		interview: iv,
		snapshot:  iv.SessionSnapshot,
		ai:        ai,
		store:     store,
		topics:    topics,
		policy:    policy,
		stage:     model.StageGreeting,
	}, nil
}

// Stage returns the current live stage.
func (m *Machine) Stage() model.Stage { return m.stage }

// Apologize asks the caller to repeat after a recognition failure. The stage
// does not move.
func (m *Machine) Apologize() error { return m.ai.CreateResponse(apologyPrompt) }

// QuestionIndex returns the main-QA cursor.
func (m *Machine) QuestionIndex() int { return m.qIndex }

// Start issues the opening instruction. A fresh interview greets and asks
// the time check; an interrupted one acknowledges the resumption and jumps
// straight to the question after the last completed one.
func (m *Machine) Start(ctx context.Context) error {
	if m.interview.LastCompletedQID != nil {
		m.resumed = true
		m.qIndex = m.interview.ResumeIndex()
		if m.qIndex >= len(m.snapshot) {
			// Everything was answered before the drop; continue into
			// reverse Q&A.
			return m.enterStage(ctx, model.StageReverseQA, reverseQAPrompt)
		}
		m.questionAskedAt = time.Now()
		return m.enterStage(ctx, model.StageMainQA, resumePrompt(m.qIndex+1, m.snapshot[m.qIndex].Text))
	}
	return m.enterStage(ctx, model.StageTimeCheck, greetingScript)
}

// OnUserTranscript consumes one finalized caller utterance.
func (m *Machine) OnUserTranscript(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return m.ai.CreateResponse(apologyPrompt)
	}
	m.pending = append(m.pending, text)
	full := strings.Join(m.pending, " ")

	ev := classify(m.stage, full)
	if acts, ok := transitions[m.stage]; ok {
		if act, ok := acts[ev]; ok {
			return act(ctx, m, full)
		}
	}

	switch {
	case m.stage == model.StageTimeCheck && m.policy.AmbiguousIsYes:
		// Documented default: ambiguous time-check input counts as yes.
		log.Printf("interview %d: ambiguous time-check input treated as affirmative: %q", m.interview.ID, text)
		return actBeginQuestions(ctx, m, full)
	case m.stage == model.StageMainQA:
		// Mid-answer fragment; keep accumulating until the finished phrase.
		return nil
	case m.stage == model.StageEnding, m.stage == model.StageGreeting:
		log.Printf("interview %d: ignoring %s event in stage %s: %q", m.interview.ID, ev, m.stage, text)
		return nil
	default:
		log.Printf("interview %d: unexpected %s event in stage %s: %q", m.interview.ID, ev, m.stage, text)
		return nil
	}
}

func classify(stage model.Stage, full string) event {
	switch stage {
	case model.StageTimeCheck:
		if containsAny(full, negativeTokens) {
			return eventNegative
		}
		if containsAny(full, affirmativeTokens) {
			return eventAffirmative
		}
	case model.StageMainQA:
		if containsAny(full, finishedTokens) {
			return eventFinished
		}
	case model.StageReverseQA:
		if containsAny(full, noMoreTokens) {
			return eventNoMore
		}
	}
	return eventUtterance
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func (m *Machine) enterStage(ctx context.Context, stage model.Stage, instructions string) error {
	m.stage = stage
	if err := m.store.SetStage(ctx, m.interview.ID, stage); err != nil {
		return err
	}
	return m.ai.CreateResponse(instructions)
}

func actBeginQuestions(ctx context.Context, m *Machine, _ string) error {
	m.pending = nil
	m.qIndex = 0
	m.questionAskedAt = time.Now()
	return m.enterStage(ctx, model.StageMainQA, askQuestionPrompt(1, m.snapshot[0].Text))
}

func actDeclineAndReschedule(ctx context.Context, m *Machine, _ string) error {
	m.pending = nil
	if err := m.store.SetStatus(ctx, m.interview.ID, model.StatusRescheduleRequested); err != nil {
		return err
	}
	return m.enterStage(ctx, model.StageEnding, rescheduleScript)
}

func actCloseQuestion(ctx context.Context, m *Machine, full string) error {
	q := m.snapshot[m.qIndex]
	corrected := CorrectTranscript(full)
	duration := 0
	if !m.questionAskedAt.IsZero() {
		duration = int(time.Since(m.questionAskedAt).Seconds())
	}
	rev := &model.InterviewReview{
		InterviewID:     m.interview.ID,
		QuestionID:      &q.QuestionID,
		QuestionText:    q.Text,
		Transcript:      corrected,
		DurationSeconds: duration,
		ComplianceFlag:  CheckCompliance(corrected),
	}
	if err := m.store.SaveQuestionProgress(ctx, rev); err != nil {
		return err
	}
	log.Printf("interview %d: question %d closed (compliance=%v)", m.interview.ID, m.qIndex+1, rev.ComplianceFlag)

	m.pending = nil
	m.qIndex++
	if m.qIndex < len(m.snapshot) {
		m.questionAskedAt = time.Now()
		return m.ai.CreateResponse(askQuestionPrompt(m.qIndex+1, m.snapshot[m.qIndex].Text))
	}
	return m.enterStage(ctx, model.StageReverseQA, reverseQAPrompt)
}

func actReverseTurn(ctx context.Context, m *Machine, full string) error {
	corrected := CorrectTranscript(full)
	rev := &model.InterviewReview{
		InterviewID:    m.interview.ID,
		QuestionText:   "逆質問",
		Transcript:     corrected,
		ComplianceFlag: CheckCompliance(corrected),
	}
	if err := m.store.SaveReview(ctx, rev); err != nil {
		return err
	}
	topic, err := m.topics.Topic(ctx, corrected)
	if err != nil {
		log.Printf("interview %d: topic extraction failed: %v", m.interview.ID, err)
		topic = ""
	}
	m.pending = nil
	return m.ai.CreateResponse(reverseAnswerPrompt(topic))
}

func actFinishInterview(ctx context.Context, m *Machine, _ string) error {
	m.pending = nil
	if err := m.store.SetStatus(ctx, m.interview.ID, model.StatusCompleted); err != nil {
		return err
	}
	return m.enterStage(ctx, model.StageEnding, closingScript)
}
