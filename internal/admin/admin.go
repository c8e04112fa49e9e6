// Package admin is the operator-facing HTTP surface: enrolling candidates
// and scheduling interviews. Twilio-facing routes live in telephony.
package admin

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Newrona-pi/voice-interviewer/internal/model"
)

// Store is the slice of the session store the admin surface needs.
type Store interface {
	CreateCandidate(ctx context.Context, c *model.Candidate) error
	ScheduleInterview(ctx context.Context, candidateID int64, at time.Time) (*model.Interview, error)
	GetInterview(ctx context.Context, id int64) (*model.Interview, error)
}

type Handler struct {
	store Store
}

func New(store Store) *Handler { return &Handler{store: store} }

// RegisterHandlers mounts the admin routes.
func (h *Handler) RegisterHandlers(e *echo.Echo) {
	e.POST("/admin/candidates", h.createCandidate)
	e.POST("/admin/interviews", h.scheduleInterview)
	e.GET("/admin/interviews/:id", h.getInterview)
}

type createCandidateRequest struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	QuestionSetID int64  `json:"question_set_id"`
}

func (h *Handler) createCandidate(c echo.Context) error {
	var req createCandidateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if req.Name == "" || req.Phone == "" || req.QuestionSetID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name, phone and question_set_id are required"})
	}
	cand := &model.Candidate{
		Name:          req.Name,
		Phone:         req.Phone,
		Email:         req.Email,
		QuestionSetID: req.QuestionSetID,
	}
	if err := h.store.CreateCandidate(c.Request().Context(), cand); err != nil {
		log.Printf("admin: create candidate: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not create candidate"})
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"id":           cand.ID,
		"invite_token": cand.InviteToken,
	})
}

type scheduleInterviewRequest struct {
	CandidateID     int64     `json:"candidate_id"`
	ReservationTime time.Time `json:"reservation_time"`
}

func (h *Handler) scheduleInterview(c echo.Context) error {
	var req scheduleInterviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if req.CandidateID <= 0 || req.ReservationTime.IsZero() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "candidate_id and reservation_time are required"})
	}
	iv, err := h.store.ScheduleInterview(c.Request().Context(), req.CandidateID, req.ReservationTime)
	if err != nil {
		log.Printf("admin: schedule interview: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not schedule interview"})
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"id":               iv.ID,
		"status":           iv.Status,
		"reservation_time": iv.ReservationTime,
	})
}

func (h *Handler) getInterview(c echo.Context) error {
	var id int64
	if err := echo.PathParamsBinder(c).Int64("id", &id).BindError(); err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad interview id"})
	}
	iv, err := h.store.GetInterview(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "interview not found"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":                  iv.ID,
		"candidate_id":        iv.CandidateID,
		"status":              iv.Status,
		"current_stage":       iv.CurrentStage,
		"resume_count":        iv.ResumeCount,
		"retry_count":         iv.RetryCount,
		"reservation_time":    iv.ReservationTime,
		"last_completed_q_id": iv.LastCompletedQID,
	})
}
