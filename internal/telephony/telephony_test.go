package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/Newrona-pi/voice-interviewer/internal/interview"
	"github.com/Newrona-pi/voice-interviewer/internal/model"
	"github.com/Newrona-pi/voice-interviewer/internal/realtime"
	"github.com/Newrona-pi/voice-interviewer/internal/relay"
)

type fakeStore struct {
	interviews map[int64]*model.Interview
	candidates map[int64]*model.Candidate
	questions  map[int64][]model.Question

	materialized map[int64][]model.SnapshotQuestion
	statuses     map[int64]model.InterviewStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		interviews:   map[int64]*model.Interview{},
		candidates:   map[int64]*model.Candidate{},
		questions:    map[int64][]model.Question{},
		materialized: map[int64][]model.SnapshotQuestion{},
		statuses:     map[int64]model.InterviewStatus{},
	}
}

func (f *fakeStore) GetInterview(_ context.Context, id int64) (*model.Interview, error) {
	iv, ok := f.interviews[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return iv, nil
}

func (f *fakeStore) GetCandidate(_ context.Context, id int64) (*model.Candidate, error) {
	c, ok := f.candidates[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (f *fakeStore) QuestionsForSet(_ context.Context, setID int64) ([]model.Question, error) {
	return f.questions[setID], nil
}

func (f *fakeStore) MaterializeSnapshot(_ context.Context, id int64, questions []model.SnapshotQuestion) error {
	f.materialized[id] = questions
	return nil
}

func (f *fakeStore) SaveQuestionProgress(context.Context, *model.InterviewReview) error { return nil }
func (f *fakeStore) SaveReview(context.Context, *model.InterviewReview) error { return nil }

func (f *fakeStore) SetStatus(_ context.Context, id int64, status model.InterviewStatus) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeStore) SetStage(context.Context, int64, model.Stage) error { return nil }

type fakeReconciler struct {
	calls []string
}

func (f *fakeReconciler) Reconcile(_ context.Context, interviewID int64, callStatus string) error {
	f.calls = append(f.calls, callStatus)
	return nil
}

func newTestService(st *fakeStore, rec *fakeReconciler) *Service {
	return New(
		Config{AccountSID: "AC0", AuthToken: "secret", FromNumber: "+815000000000", PublicHost: "engine.example.com"},
		st, rec, nil, realtime.Config{APIKey: "sk-test", Voice: "alloy"},
		relay.DefaultConfig(), interview.DefaultPolicy(),
	)
}

func postContext(t *testing.T, target string, params map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if params != nil {
		c.Set("twilioParams", params)
	}
	return c, rec
}

func TestHandleAnswer_MaterializesSnapshotAndOpensStream(t *testing.T) {
	st := newFakeStore()
	st.interviews[5] = &model.Interview{ID: 5, CandidateID: 10, Status: model.StatusCalling}
	st.candidates[10] = &model.Candidate{ID: 10, QuestionSetID: 3}
	st.questions[3] = []model.Question{
		{ID: 101, SetID: 3, Order: 1, Text: "志望動機を教えてください。", MaxDuration: 180},
		{ID: 102, SetID: 3, Order: 2, Text: "ご経験を教えてください。", MaxDuration: 120},
	}
	svc := newTestService(st, &fakeReconciler{})

	c, rec := postContext(t, "/voice/answer?interview_id=5", nil)
	if err := svc.handleAnswer(c); err != nil {
		t.Fatalf("answer: %v", err)
	}

	snap, ok := st.materialized[5]
	if !ok || len(snap) != 2 || snap[0].QuestionID != 101 {
		t.Fatalf("snapshot not materialized: %v", snap)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Connect") || !strings.Contains(body, "wss://engine.example.com/voice/stream?interview_id=5") {
		t.Fatalf("stream TwiML missing: %s", body)
	}
}

func TestHandleAnswer_ExistingSnapshotNotRewritten(t *testing.T) {
	st := newFakeStore()
	st.interviews[5] = &model.Interview{
		ID: 5, CandidateID: 10, Status: model.StatusCalling,
		SessionSnapshot: []model.SnapshotQuestion{{QuestionID: 101, Text: "q"}},
	}
	svc := newTestService(st, &fakeReconciler{})

	c, _ := postContext(t, "/voice/answer?interview_id=5", nil)
	if err := svc.handleAnswer(c); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(st.materialized) != 0 {
		t.Fatalf("snapshot rewritten on resume")
	}
	if st.statuses[5] != model.StatusInProgress {
		t.Fatalf("resumed call not marked in_progress: %v", st.statuses)
	}
}

func TestHandleAnswer_UnknownInterviewSpeaksErrorAndHangsUp(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeReconciler{})
	c, rec := postContext(t, "/voice/answer?interview_id=99", nil)
	if err := svc.handleAnswer(c); err != nil {
		t.Fatalf("answer: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Say") || !strings.Contains(body, "Hangup") {
		t.Fatalf("expected spoken error and hangup, got %s", body)
	}
	if !strings.Contains(body, "面接情報が見つかりませんでした") {
		t.Fatalf("error message not in Japanese: %s", body)
	}
}

func TestCreateCallParams_SubscribesCompletedEventOnly(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeReconciler{})
	params := svc.createCallParams(5, "+818011112222")

	if params.StatusCallbackEvent == nil {
		t.Fatalf("status callback events not set")
	}
	if got := *params.StatusCallbackEvent; len(got) != 1 || got[0] != "completed" {
		t.Fatalf("only the completed event is a valid subscription, got %v", got)
	}
	if params.To == nil || *params.To != "+818011112222" {
		t.Fatalf("to number wrong: %v", params.To)
	}
	if params.Url == nil || !strings.Contains(*params.Url, "/voice/answer?interview_id=5") {
		t.Fatalf("answer webhook wrong: %v", params.Url)
	}
	if params.StatusCallback == nil || !strings.Contains(*params.StatusCallback, "/voice/status?interview_id=5") {
		t.Fatalf("status webhook wrong: %v", params.StatusCallback)
	}
}

func TestHandleStatus_FinalStatusReconciles(t *testing.T) {
	st := newFakeStore()
	rec := &fakeReconciler{}
	svc := newTestService(st, rec)

	for _, status := range []string{"completed", "busy", "no-answer", "failed"} {
		c, _ := postContext(t, "/voice/status?interview_id=5", map[string]string{"CallStatus": status})
		if err := svc.handleStatus(c); err != nil {
			t.Fatalf("%s: %v", status, err)
		}
	}
	if len(rec.calls) != 4 {
		t.Fatalf("expected 4 reconciliations, got %v", rec.calls)
	}
}

func TestHandleStatus_IntermediateStatusIgnored(t *testing.T) {
	rec := &fakeReconciler{}
	svc := newTestService(newFakeStore(), rec)
	for _, status := range []string{"initiated", "ringing", "answered"} {
		c, _ := postContext(t, "/voice/status?interview_id=5", map[string]string{"CallStatus": status})
		if err := svc.handleStatus(c); err != nil {
			t.Fatalf("%s: %v", status, err)
		}
	}
	if len(rec.calls) != 0 {
		t.Fatalf("intermediate statuses must not reconcile: %v", rec.calls)
	}
}

func signBody(token, fullURL string, params url.Values) string {
	data := fullURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestAuthMiddleware_ValidSignaturePasses(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeReconciler{})
	form := url.Values{}
	form.Set("CallStatus", "completed")
	form.Set("CallSid", "CA123")

	target := "/voice/status?interview_id=5"
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Host = "engine.example.com"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("X-Twilio-Signature", signBody("secret", "https://engine.example.com"+target, form))
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	called := false
	h := svc.authMiddleware(func(c echo.Context) error {
		called = true
		params := c.Get("twilioParams").(map[string]string)
		if params["CallStatus"] != "completed" {
			t.Fatalf("params not exposed: %v", params)
		}
		return c.String(http.StatusOK, "OK")
	})
	if err := h(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if !called {
		t.Fatalf("handler not reached with valid signature")
	}
}

func TestAuthMiddleware_InvalidSignatureRejected(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeReconciler{})
	form := url.Values{}
	form.Set("CallStatus", "completed")

	req := httptest.NewRequest(http.MethodPost, "/voice/status?interview_id=5", strings.NewReader(form.Encode()))
	req.Host = "engine.example.com"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("X-Twilio-Signature", "bogus")
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	h := svc.authMiddleware(func(c echo.Context) error {
		t.Fatalf("handler reached with bad signature")
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestInterviewID_Parsing(t *testing.T) {
	for _, tc := range []struct {
		target string
		ok     bool
	}{
		{"/voice/answer?interview_id=12", true},
		{"/voice/answer?interview_id=0", false},
		{"/voice/answer?interview_id=abc", false},
		{"/voice/answer", false},
	} {
		c, _ := postContext(t, tc.target, nil)
		_, err := interviewID(c)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: unexpected result %v", tc.target, err)
		}
	}
}
