package interview

import (
	"context"
	"strings"
	"testing"

	"github.com/Newrona-pi/voice-interviewer/internal/model"
)

type fakeResponder struct {
	instructions []string
}

func (f *fakeResponder) CreateResponse(instructions string) error {
	f.instructions = append(f.instructions, instructions)
	return nil
}

func (f *fakeResponder) last(t *testing.T) string {
	t.Helper()
	if len(f.instructions) == 0 {
		t.Fatalf("no instructions issued")
	}
	return f.instructions[len(f.instructions)-1]
}

type fakeStore struct {
	progress []*model.InterviewReview
	reviews  []*model.InterviewReview
	statuses []model.InterviewStatus
	stages   []model.Stage
}

func (f *fakeStore) SaveQuestionProgress(_ context.Context, rev *model.InterviewReview) error {
	f.progress = append(f.progress, rev)
	return nil
}

func (f *fakeStore) SaveReview(_ context.Context, rev *model.InterviewReview) error {
	f.reviews = append(f.reviews, rev)
	return nil
}

func (f *fakeStore) SetStatus(_ context.Context, _ int64, status model.InterviewStatus) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeStore) SetStage(_ context.Context, _ int64, stage model.Stage) error {
	f.stages = append(f.stages, stage)
	return nil
}

func qid(v int64) *int64 { return &v }

func testInterview(lastCompleted *int64) *model.Interview {
	return &model.Interview{
		ID:               7,
		Status:           model.StatusInProgress,
		LastCompletedQID: lastCompleted,
		SessionSnapshot: []model.SnapshotQuestion{
			{QuestionID: 101, Text: "志望動機を教えてください。", MaxDuration: 180},
			{QuestionID: 102, Text: "これまでのご経験を教えてください。", MaxDuration: 180},
			{QuestionID: 103, Text: "強みと弱みを教えてください。", MaxDuration: 120},
		},
	}
}

func newMachine(t *testing.T, iv *model.Interview) (*Machine, *fakeResponder, *fakeStore) {
	t.Helper()
	ai := &fakeResponder{}
	st := &fakeStore{}
	m, err := New(iv, ai, st, nil, DefaultPolicy())
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m, ai, st
}

func TestNew_RequiresSnapshot(t *testing.T) {
	iv := testInterview(nil)
	iv.SessionSnapshot = nil
	if _, err := New(iv, &fakeResponder{}, &fakeStore{}, nil, DefaultPolicy()); err == nil {
		t.Fatalf("expected error for missing snapshot")
	}
}

func TestStart_FreshInterviewGreets(t *testing.T) {
	m, ai, st := newMachine(t, testInterview(nil))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Stage() != model.StageTimeCheck {
		t.Fatalf("expected time_check after start, got %s", m.Stage())
	}
	if !strings.Contains(ai.last(t), "面接のお時間はよろしいでしょうか") {
		t.Fatalf("greeting not issued: %q", ai.last(t))
	}
	if len(st.stages) != 1 || st.stages[0] != model.StageTimeCheck {
		t.Fatalf("stage not persisted: %v", st.stages)
	}
}

func TestTimeCheck_AffirmativeAsksFirstQuestion(t *testing.T) {
	m, ai, _ := newMachine(t, testInterview(nil))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.OnUserTranscript(context.Background(), "はい、大丈夫です"); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if m.Stage() != model.StageMainQA || m.QuestionIndex() != 0 {
		t.Fatalf("expected main_qa q0, got %s q%d", m.Stage(), m.QuestionIndex())
	}
	if !strings.Contains(ai.last(t), "質問1") || !strings.Contains(ai.last(t), "志望動機") {
		t.Fatalf("first question not asked: %q", ai.last(t))
	}
}

func TestTimeCheck_NegativeRequestsReschedule(t *testing.T) {
	m, ai, st := newMachine(t, testInterview(nil))
	_ = m.Start(context.Background())
	if err := m.OnUserTranscript(context.Background(), "いいえ、今は無理です"); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if m.Stage() != model.StageEnding {
		t.Fatalf("expected ending, got %s", m.Stage())
	}
	if len(st.statuses) != 1 || st.statuses[0] != model.StatusRescheduleRequested {
		t.Fatalf("expected reschedule_requested, got %v", st.statuses)
	}
	if !strings.Contains(ai.last(t), "謝罪") {
		t.Fatalf("reschedule prompt not issued: %q", ai.last(t))
	}
}

func TestTimeCheck_AmbiguousPolicyDefaultYes(t *testing.T) {
	m, _, _ := newMachine(t, testInterview(nil))
	_ = m.Start(context.Background())
	if err := m.OnUserTranscript(context.Background(), "えっと、そうですね"); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if m.Stage() != model.StageMainQA {
		t.Fatalf("ambiguous input should default to yes, got %s", m.Stage())
	}
}

func TestTimeCheck_AmbiguousPolicyDisabledStays(t *testing.T) {
	iv := testInterview(nil)
	ai := &fakeResponder{}
	st := &fakeStore{}
	m, err := New(iv, ai, st, nil, Policy{AmbiguousIsYes: false})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = m.Start(context.Background())
	if err := m.OnUserTranscript(context.Background(), "えっと、そうですね"); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if m.Stage() != model.StageTimeCheck {
		t.Fatalf("strict policy should keep time_check, got %s", m.Stage())
	}
}

func TestMainQA_FinishedClosesQuestionAndAsksNext(t *testing.T) {
	m, ai, st := newMachine(t, testInterview(nil))
	_ = m.Start(context.Background())
	_ = m.OnUserTranscript(context.Background(), "はい")

	// Answer to question 1 arrives in two fragments, then the close phrase.
	_ = m.OnUserTranscript(context.Background(), "御社の事業に魅力を感じました")
	if err := m.OnUserTranscript(context.Background(), "以上です"); err != nil {
		t.Fatalf("transcript: %v", err)
	}

	if len(st.progress) != 1 {
		t.Fatalf("expected one progress save, got %d", len(st.progress))
	}
	rev := st.progress[0]
	if rev.QuestionID == nil || *rev.QuestionID != 101 {
		t.Fatalf("review bound to wrong question: %v", rev.QuestionID)
	}
	if !strings.Contains(rev.Transcript, "魅力を感じました") {
		t.Fatalf("accumulated answer lost: %q", rev.Transcript)
	}
	if m.QuestionIndex() != 1 {
		t.Fatalf("cursor not advanced: %d", m.QuestionIndex())
	}
	if !strings.Contains(ai.last(t), "質問2") {
		t.Fatalf("next question not asked: %q", ai.last(t))
	}
}

func TestMainQA_LastQuestionEntersReverseQA(t *testing.T) {
	m, ai, st := newMachine(t, testInterview(nil))
	_ = m.Start(context.Background())
	_ = m.OnUserTranscript(context.Background(), "はい")
	for i := 0; i < 3; i++ {
		_ = m.OnUserTranscript(context.Background(), "回答です")
		if err := m.OnUserTranscript(context.Background(), "以上です"); err != nil {
			t.Fatalf("q%d close: %v", i+1, err)
		}
	}
	if m.Stage() != model.StageReverseQA {
		t.Fatalf("expected reverse_qa after last question, got %s", m.Stage())
	}
	if len(st.progress) != 3 {
		t.Fatalf("expected 3 reviews, got %d", len(st.progress))
	}
	if !strings.Contains(ai.last(t), "聞きたいことはありますか") {
		t.Fatalf("reverse QA prompt not issued: %q", ai.last(t))
	}
}

func TestMainQA_CorrectionAppliedBeforePersist(t *testing.T) {
	m, _, st := newMachine(t, testInterview(nil))
	_ = m.Start(context.Background())
	_ = m.OnUserTranscript(context.Background(), "はい")
	_ = m.OnUserTranscript(context.Background(), "私の死亡動機は成長です")
	_ = m.OnUserTranscript(context.Background(), "以上です")
	if got := st.progress[0].Transcript; strings.Contains(got, "死亡動機") || !strings.Contains(got, "志望動機") {
		t.Fatalf("correction table not applied: %q", got)
	}
}

func TestMainQA_ComplianceFlagSet(t *testing.T) {
	m, _, st := newMachine(t, testInterview(nil))
	_ = m.Start(context.Background())
	_ = m.OnUserTranscript(context.Background(), "はい")
	_ = m.OnUserTranscript(context.Background(), "前の上司に暴力を振るわれました")
	_ = m.OnUserTranscript(context.Background(), "以上です")
	if !st.progress[0].ComplianceFlag {
		t.Fatalf("blocklisted token did not set compliance flag")
	}
}

func TestReverseQA_FreeFormLogsAndLoops(t *testing.T) {
	m, ai, st := newMachine(t, testInterview(qid(103)))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Stage() != model.StageReverseQA {
		t.Fatalf("resume past last question should enter reverse_qa, got %s", m.Stage())
	}
	if err := m.OnUserTranscript(context.Background(), "残業時間はどのくらいですか。"); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(st.reviews) != 1 {
		t.Fatalf("reverse question not logged")
	}
	if st.reviews[0].QuestionID != nil {
		t.Fatalf("reverse review must have nil question id")
	}
	if m.Stage() != model.StageReverseQA {
		t.Fatalf("reverse_qa should loop, got %s", m.Stage())
	}
	if !strings.Contains(ai.last(t), "他に質問はありますか") {
		t.Fatalf("loop prompt not issued: %q", ai.last(t))
	}
}

func TestReverseQA_NoMoreEndsInterview(t *testing.T) {
	m, ai, st := newMachine(t, testInterview(qid(103)))
	_ = m.Start(context.Background())
	if err := m.OnUserTranscript(context.Background(), "特にありません"); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if m.Stage() != model.StageEnding {
		t.Fatalf("expected ending, got %s", m.Stage())
	}
	if len(st.statuses) != 1 || st.statuses[0] != model.StatusCompleted {
		t.Fatalf("expected completed status, got %v", st.statuses)
	}
	if !strings.Contains(ai.last(t), "7営業日以内") {
		t.Fatalf("closing remarks not issued: %q", ai.last(t))
	}
}

func TestResume_StartsAtQuestionAfterLastCompleted(t *testing.T) {
	m, ai, _ := newMachine(t, testInterview(qid(101)))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Stage() != model.StageMainQA || m.QuestionIndex() != 1 {
		t.Fatalf("expected resume at main_qa q1, got %s q%d", m.Stage(), m.QuestionIndex())
	}
	if !strings.Contains(ai.last(t), "再開") || !strings.Contains(ai.last(t), "質問2") {
		t.Fatalf("resume acknowledgment missing: %q", ai.last(t))
	}
}

func TestEmptyTranscript_TriggersApology(t *testing.T) {
	m, ai, _ := newMachine(t, testInterview(nil))
	_ = m.Start(context.Background())
	if err := m.OnUserTranscript(context.Background(), "   "); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if !strings.Contains(ai.last(t), "もう一度お願いします") {
		t.Fatalf("apology not issued: %q", ai.last(t))
	}
	if m.Stage() != model.StageTimeCheck {
		t.Fatalf("empty input must not advance the stage")
	}
}
