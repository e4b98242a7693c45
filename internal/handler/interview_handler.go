package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/service"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type interviewService interface {
	Schedule(ctx context.Context, req service.ScheduleInterviewRequest, actor *models.Actor) (*models.Interview, error)
	Reschedule(ctx context.Context, id string, newSchedule time.Time, reason string, actor *models.Actor) (*models.Interview, error)
	Complete(ctx context.Context, req service.CompleteInterviewRequest, actor *models.Actor) (*models.Interview, error)
	Cancel(ctx context.Context, id, reason string, actor *models.Actor) (*models.Interview, error)
	MarkNoShow(ctx context.Context, id string, actor *models.Actor) (*models.Interview, error)
	Get(ctx context.Context, id string, actor *models.Actor) (*models.Interview, error)
	List(ctx context.Context, filter models.InterviewFilter, actor *models.Actor) ([]models.Interview, error)
}

// InterviewHandler exposes interview scheduling and outcomes.
type InterviewHandler struct {
	service interviewService
}

// NewInterviewHandler constructs the handler.
func NewInterviewHandler(svc interviewService) *InterviewHandler {
	return &InterviewHandler{service: svc}
}

// Schedule godoc
// @Summary Schedule an interview
// @Tags Interviews
// @Accept json
// @Produce json
// @Param payload body dto.ScheduleInterviewRequest true "Interview"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /interviews [post]
func (h *InterviewHandler) Schedule(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ScheduleInterviewRequest
	if !bindJSON(c, &req, "invalid interview payload") {
		return
	}
	interview, err := h.service.Schedule(c.Request.Context(), service.ScheduleInterviewRequest{
		ApplicationID: req.ApplicationID,
		InterviewerID: req.InterviewerID,
		Schedule:      req.Schedule,
		Location:      req.Location,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, interview)
}

// List godoc
// @Summary List interviews
// @Description Interviewers without a managing role only see their own
// @Tags Interviews
// @Produce json
// @Param application_id query string false "Application ID"
// @Param interviewer_id query string false "Interviewer ID"
// @Param status query []string false "Statuses" collectionFormat(csv)
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Success 200 {object} response.Envelope
// @Router /interviews [get]
func (h *InterviewHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var query dto.InterviewQuery
	if !bindQuery(c, &query) {
		return
	}
	rows, err := h.service.List(c.Request.Context(), query.Filter(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	listJSON(c, rows, nil)
}

// Get godoc
// @Summary Get interview
// @Tags Interviews
// @Produce json
// @Param id path string true "Interview ID"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id} [get]
func (h *InterviewHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	interview, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, interview, nil)
}

// Reschedule godoc
// @Summary Reschedule an interview
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Interview ID"
// @Param payload body dto.RescheduleInterviewRequest true "New slot"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id}/reschedule [patch]
func (h *InterviewHandler) Reschedule(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.RescheduleInterviewRequest
	if !bindJSON(c, &req, "invalid reschedule payload") {
		return
	}
	interview, err := h.service.Reschedule(c.Request.Context(), c.Param("id"), req.Schedule, req.Reason, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, interview, nil)
}

// Complete godoc
// @Summary Record interview outcome
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Interview ID"
// @Param payload body dto.CompleteInterviewRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id}/complete [post]
func (h *InterviewHandler) Complete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CompleteInterviewRequest
	if !bindJSON(c, &req, "invalid outcome payload") {
		return
	}
	interview, err := h.service.Complete(c.Request.Context(), service.CompleteInterviewRequest{
		InterviewID:    c.Param("id"),
		Scores:         req.Scores,
		Recommendation: req.Recommendation,
		Remarks:        req.Remarks,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, interview, nil)
}

// Cancel godoc
// @Summary Cancel an interview
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Interview ID"
// @Param payload body dto.CancelInterviewRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id}/cancel [post]
func (h *InterviewHandler) Cancel(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CancelInterviewRequest
	if !bindJSON(c, &req, "reason required") {
		return
	}
	interview, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, interview, nil)
}

// NoShow godoc
// @Summary Mark an interview as a no-show
// @Tags Interviews
// @Produce json
// @Param id path string true "Interview ID"
// @Success 200 {object} response.Envelope
// @Router /interviews/{id}/no-show [post]
func (h *InterviewHandler) NoShow(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	interview, err := h.service.MarkNoShow(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, interview, nil)
}
