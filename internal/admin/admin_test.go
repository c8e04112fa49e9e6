package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Newrona-pi/voice-interviewer/internal/model"
)

type fakeStore struct {
	candidates []*model.Candidate
	interviews map[int64]*model.Interview
	nextID     int64
}

func (f *fakeStore) CreateCandidate(_ context.Context, c *model.Candidate) error {
	f.nextID++
	c.ID = f.nextID
	c.InviteToken = "tok-fixed"
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeStore) ScheduleInterview(_ context.Context, candidateID int64, at time.Time) (*model.Interview, error) {
	f.nextID++
	iv := &model.Interview{ID: f.nextID, CandidateID: candidateID, Status: model.StatusScheduled, ReservationTime: at}
	if f.interviews == nil {
		f.interviews = map[int64]*model.Interview{}
	}
	f.interviews[iv.ID] = iv
	return iv, nil
}

func (f *fakeStore) GetInterview(_ context.Context, id int64) (*model.Interview, error) {
	iv, ok := f.interviews[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return iv, nil
}

func request(t *testing.T, h *Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterHandlers(e)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateCandidate_ReturnsInviteToken(t *testing.T) {
	st := &fakeStore{}
	rec := request(t, New(st), http.MethodPost, "/admin/candidates",
		`{"name":"山田太郎","phone":"+818011112222","email":"taro@example.com","question_set_id":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "tok-fixed") {
		t.Fatalf("invite token missing: %s", rec.Body.String())
	}
	if len(st.candidates) != 1 || st.candidates[0].QuestionSetID != 3 {
		t.Fatalf("candidate not stored: %+v", st.candidates)
	}
}

func TestCreateCandidate_RejectsMissingFields(t *testing.T) {
	rec := request(t, New(&fakeStore{}), http.MethodPost, "/admin/candidates", `{"name":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScheduleInterview(t *testing.T) {
	st := &fakeStore{}
	rec := request(t, New(st), http.MethodPost, "/admin/interviews",
		`{"candidate_id":7,"reservation_time":"2025-06-10T09:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), string(model.StatusScheduled)) {
		t.Fatalf("status missing: %s", rec.Body.String())
	}
}

func TestGetInterview_NotFound(t *testing.T) {
	rec := request(t, New(&fakeStore{}), http.MethodGet, "/admin/interviews/99", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetInterview_ReturnsProgress(t *testing.T) {
	st := &fakeStore{}
	iv, _ := st.ScheduleInterview(context.Background(), 7, time.Now())
	rec := request(t, New(st), http.MethodGet, "/admin/interviews/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"candidate_id":7`) {
		t.Fatalf("body missing candidate: %s (iv %d)", rec.Body.String(), iv.ID)
	}
}
