package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/service"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type applicationService interface {
	Apply(ctx context.Context, req service.ApplyRequest, actor *models.Actor) (*service.ApplicationSubmission, error)
	SubmitDraft(ctx context.Context, applicationID string, actor *models.Actor) (*service.ApplicationSubmission, error)
	Get(ctx context.Context, id string, actor *models.Actor) (*models.ApplicationDetail, error)
	List(ctx context.Context, filter models.ApplicationFilter, actor *models.Actor) (*service.ApplicationListResult, error)
	History(ctx context.Context, id string, actor *models.Actor) ([]models.ApplicationStatusHistory, error)
	Transition(ctx context.Context, id string, to models.ApplicationStatus, reason string, actor *models.Actor) (*models.ApplicationDetail, error)
}

type completenessChecker interface {
	CheckDocumentCompleteness(ctx context.Context, applicationID string, actor *models.Actor) (*models.DocumentCompleteness, error)
}

// ApplicationHandler exposes intake and the review workflow.
type ApplicationHandler struct {
	service   applicationService
	documents completenessChecker
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(svc applicationService, documents completenessChecker) *ApplicationHandler {
	return &ApplicationHandler{service: svc, documents: documents}
}

// Apply godoc
// @Summary Apply for a scholarship
// @Description Runs the eligibility check unless the application is saved as a draft.
// @Description A failed check returns 422 with the per-requirement results in data.
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.ApplyRequest true "Application"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Apply(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ApplyRequest
	if !bindJSON(c, &req, "invalid application payload") {
		return
	}
	res, err := h.service.Apply(c.Request.Context(), service.ApplyRequest{
		ScholarshipID: req.ScholarshipID,
		SaveAsDraft:   req.SaveAsDraft,
	}, actor)
	if err != nil {
		submissionError(c, res, err)
		return
	}
	response.Created(c, res)
}

// Submit godoc
// @Summary Submit a draft application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /applications/{id}/submit [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	res, err := h.service.SubmitDraft(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		submissionError(c, res, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

func submissionError(c *gin.Context, res *service.ApplicationSubmission, err error) {
	if res != nil && res.Eligibility != nil {
		response.ErrorWithData(c, err, res.Eligibility)
		return
	}
	response.Error(c, err)
}

// List godoc
// @Summary List applications
// @Description Students only see their own applications
// @Tags Applications
// @Produce json
// @Param scholarship_id query string false "Scholarship ID"
// @Param student_id query string false "Student profile ID"
// @Param status query []string false "Statuses" collectionFormat(csv)
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var query dto.ApplicationQuery
	if !bindQuery(c, &query) {
		return
	}
	filter := query.Filter()
	res, err := h.service.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	listJSON(c, res.Items, pageMeta(query.Page, filter.Limit, res.Total))
}

// Get godoc
// @Summary Get application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// History godoc
// @Summary Application status history
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/history [get]
func (h *ApplicationHandler) History(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	items, err := h.service.History(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Completeness godoc
// @Summary Document completeness
// @Description Lists required, uploaded, verified and missing document types
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/completeness [get]
func (h *ApplicationHandler) Completeness(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	res, err := h.documents.CheckDocumentCompleteness(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Transition godoc
// @Summary Change application status
// @Description Staff move an application along the review workflow
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/status [patch]
func (h *ApplicationHandler) Transition(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.TransitionRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	detail, err := h.service.Transition(c.Request.Context(), c.Param("id"), req.Status, req.Reason, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
