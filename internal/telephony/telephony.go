// Package telephony is the Twilio integration: outbound call placement, the
// answer webhook returning TwiML, status and recording callbacks, and the
// media-stream websocket endpoint feeding the relay.
package telephony

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"github.com/Newrona-pi/voice-interviewer/internal/interview"
	"github.com/Newrona-pi/voice-interviewer/internal/model"
	"github.com/Newrona-pi/voice-interviewer/internal/realtime"
	"github.com/Newrona-pi/voice-interviewer/internal/relay"
)

// Store is the slice of the session store telephony needs.
type Store interface {
	GetInterview(ctx context.Context, id int64) (*model.Interview, error)
	GetCandidate(ctx context.Context, id int64) (*model.Candidate, error)
	QuestionsForSet(ctx context.Context, setID int64) ([]model.Question, error)
	MaterializeSnapshot(ctx context.Context, id int64, questions []model.SnapshotQuestion) error
	SaveQuestionProgress(ctx context.Context, rev *model.InterviewReview) error
	SaveReview(ctx context.Context, rev *model.InterviewReview) error
	SetStatus(ctx context.Context, id int64, status model.InterviewStatus) error
	SetStage(ctx context.Context, id int64, stage model.Stage) error
}

// Reconciler applies the end-of-call decision table.
type Reconciler interface {
	Reconcile(ctx context.Context, interviewID int64, callStatus string) error
}

// Transcriber runs the asynchronous recording back-fill.
type Transcriber interface {
	Process(ctx context.Context, interviewID int64, recordingURL string)
}

// Config holds Twilio credentials and the public endpoint base.
type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// PublicHost is the externally reachable host (no scheme) webhooks and
	// the media stream are served from.
	PublicHost string
}

// Service wires the Twilio surface together.
type Service struct {
	cfg        Config
	store      Store
	reconciler Reconciler
	transcribe Transcriber
	realtime   realtime.Config
	relayCfg   relay.Config
	policy     interview.Policy
	client     *twilio.RestClient
}

func New(cfg Config, st Store, rec Reconciler, tr Transcriber, rt realtime.Config, relayCfg relay.Config, policy interview.Policy) *Service {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Service{
		cfg:        cfg,
		store:      st,
		reconciler: rec,
		transcribe: tr,
		realtime:   rt,
		relayCfg:   relayCfg,
		policy:     policy,
		client:     client,
	}
}

// RegisterHandlers mounts the Twilio-facing routes.
func (s *Service) RegisterHandlers(e *echo.Echo) {
	e.POST("/voice/answer", s.handleAnswer, s.authMiddleware)
	e.POST("/voice/status", s.handleStatus, s.authMiddleware)
	e.POST("/voice/recording-status", s.handleRecordingStatus, s.authMiddleware)
	e.GET("/voice/stream", s.handleStream)
}

// PlaceCall places the outbound call for one interview. The interview id
// rides along as a query parameter on every webhook so the callbacks can
// correlate without provider-side state.
func (s *Service) PlaceCall(_ context.Context, interviewID int64, phone string) error {
	resp, err := s.client.Api.CreateCall(s.createCallParams(interviewID, phone))
	if err != nil {
		return fmt.Errorf("create call for interview %d: %w", interviewID, err)
	}
	if resp.Sid != nil {
		log.Printf("telephony: interview %d call placed: %s", interviewID, *resp.Sid)
	}
	return nil
}

// createCallParams builds the outbound call request. Only the completed
// event is a valid status-callback subscription on the Call resource; the
// busy, no-answer and failed outcomes arrive as the CallStatus value on
// that event.
func (s *Service) createCallParams(interviewID int64, phone string) *twilioApi.CreateCallParams {
	params := &twilioApi.CreateCallParams{}
	params.SetTo(phone)
	params.SetFrom(s.cfg.FromNumber)
	params.SetUrl(s.webhookURL("/voice/answer", interviewID))
	params.SetStatusCallback(s.webhookURL("/voice/status", interviewID))
	params.SetStatusCallbackEvent([]string{"completed"})
	params.SetStatusCallbackMethod("POST")
	return params
}

func (s *Service) webhookURL(path string, interviewID int64) string {
	return fmt.Sprintf("https://%s%s?interview_id=%d", s.cfg.PublicHost, path, interviewID)
}

// handleAnswer is the call-start webhook. It materializes the session
// snapshot on the first attempt and tells Twilio to open the media stream.
// Data errors get a spoken Japanese message and hangup, never a retry.
func (s *Service) handleAnswer(c echo.Context) error {
	id, err := interviewID(c)
	if err != nil {
		return s.sayErrorAndHangup(c, "面接情報が見つかりませんでした。お手数ですが、担当者までお問い合わせください。")
	}
	ctx := c.Request().Context()

	iv, err := s.store.GetInterview(ctx, id)
	if err != nil {
		log.Printf("telephony: interview %d not found: %v", id, err)
		return s.sayErrorAndHangup(c, "面接情報が見つかりませんでした。お手数ですが、担当者までお問い合わせください。")
	}
	if iv.SessionSnapshot == nil {
		if err := s.materialize(ctx, iv); err != nil {
			log.Printf("telephony: interview %d snapshot: %v", id, err)
			return s.sayErrorAndHangup(c, "質問の読み込みに失敗しました。お手数ですが、担当者までお問い合わせください。")
		}
	} else {
		// Resumed call; the greeting path differs but the plumbing is the same.
		if err := s.store.SetStatus(ctx, id, model.StatusInProgress); err != nil {
			log.Printf("telephony: interview %d status: %v", id, err)
		}
	}

	streamURL := fmt.Sprintf("wss://%s/voice/stream?interview_id=%d", s.cfg.PublicHost, id)
	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceConnect{
			InnerElements: []twiml.Element{&twiml.VoiceStream{Url: streamURL}},
		},
		&twiml.VoicePause{Length: "600"},
	})
	if err != nil {
		return fmt.Errorf("render answer twiml: %w", err)
	}
	return c.XMLBlob(http.StatusOK, []byte(doc))
}

// materialize captures the question script into the interview row. The store
// guards against overwriting an existing snapshot, so a concurrent duplicate
// webhook is harmless.
func (s *Service) materialize(ctx context.Context, iv *model.Interview) error {
	cand, err := s.store.GetCandidate(ctx, iv.CandidateID)
	if err != nil {
		return fmt.Errorf("candidate %d: %w", iv.CandidateID, err)
	}
	questions, err := s.store.QuestionsForSet(ctx, cand.QuestionSetID)
	if err != nil {
		return fmt.Errorf("question set %d: %w", cand.QuestionSetID, err)
	}
	if len(questions) == 0 {
		return fmt.Errorf("question set %d is empty", cand.QuestionSetID)
	}
	snapshot := make([]model.SnapshotQuestion, 0, len(questions))
	for _, q := range questions {
		snapshot = append(snapshot, model.SnapshotQuestion{
			QuestionID:  q.ID,
			Text:        q.Text,
			MaxDuration: q.MaxDuration,
		})
	}
	return s.store.MaterializeSnapshot(ctx, iv.ID, snapshot)
}

func (s *Service) sayErrorAndHangup(c echo.Context, message string) error {
	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Language: "ja-JP", Message: message},
		&twiml.VoiceHangup{},
	})
	if err != nil {
		return fmt.Errorf("render error twiml: %w", err)
	}
	return c.XMLBlob(http.StatusOK, []byte(doc))
}

// handleStatus is the provider's end-of-call callback; it feeds the
// reconciliation table.
func (s *Service) handleStatus(c echo.Context) error {
	id, err := interviewID(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "missing interview_id")
	}
	params := c.Get("twilioParams").(map[string]string)
	callStatus := params["CallStatus"]
	log.Printf("telephony: interview %d call status: %s", id, callStatus)

	switch callStatus {
	case "completed", "busy", "no-answer", "failed", "canceled":
		if err := s.reconciler.Reconcile(c.Request().Context(), id, callStatus); err != nil {
			log.Printf("telephony: reconcile interview %d: %v", id, err)
		}
	default:
		// Intermediate statuses (initiated, ringing, answered) need no action.
	}
	return c.String(http.StatusOK, "OK")
}

// handleRecordingStatus receives the finished dual-channel recording and
// hands it to the asynchronous transcription back-fill.
func (s *Service) handleRecordingStatus(c echo.Context) error {
	id, err := interviewID(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "missing interview_id")
	}
	params := c.Get("twilioParams").(map[string]string)
	status := params["RecordingStatus"]
	recordingURL := params["RecordingUrl"]
	log.Printf("telephony: interview %d recording status: %s", id, status)

	if status == "completed" && recordingURL != "" && s.transcribe != nil {
		go s.transcribe.Process(context.Background(), id, recordingURL)
	}
	return c.String(http.StatusOK, "OK")
}

// StartRecording starts the dual-channel call recording once the media
// stream is up.
func (s *Service) StartRecording(interviewID int64, callSID string) {
	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(s.webhookURL("/voice/recording-status", interviewID))
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"completed"})
	params.SetRecordingChannels("dual")

	if _, err := s.client.Api.CreateCallRecording(callSID, params); err != nil {
		log.Printf("telephony: start recording for interview %d: %v", interviewID, err)
		return
	}
	log.Printf("telephony: recording started for interview %d (call %s)", interviewID, callSID)
}

func interviewID(c echo.Context) (int64, error) {
	raw := c.QueryParam("interview_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad interview_id %q", raw)
	}
	return id, nil
}
