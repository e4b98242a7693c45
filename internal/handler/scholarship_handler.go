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

type scholarshipService interface {
	Create(ctx context.Context, req service.ScholarshipRequest, actor *models.Actor) (*models.Scholarship, error)
	Update(ctx context.Context, id string, req service.ScholarshipRequest, actor *models.Actor) (*models.Scholarship, error)
	SetStatus(ctx context.Context, id string, status models.ScholarshipStatus, actor *models.Actor) (*models.Scholarship, error)
	Get(ctx context.Context, id string, actor *models.Actor) (*models.Scholarship, error)
	List(ctx context.Context, filter models.ScholarshipFilter, actor *models.Actor) (*service.ScholarshipList, error)
}

type eligibilityChecker interface {
	CheckForActor(ctx context.Context, studentID, scholarshipID string, actor *models.Actor) (*service.EligibilityResult, error)
}

// ScholarshipHandler exposes the scholarship catalogue.
type ScholarshipHandler struct {
	service     scholarshipService
	eligibility eligibilityChecker
}

// NewScholarshipHandler constructs the handler.
func NewScholarshipHandler(svc scholarshipService, eligibility eligibilityChecker) *ScholarshipHandler {
	return &ScholarshipHandler{service: svc, eligibility: eligibility}
}

// List godoc
// @Summary List scholarships
// @Description Students only see active and upcoming entries
// @Tags Scholarships
// @Produce json
// @Param type query string false "Scholarship type"
// @Param status query string false "Status"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /scholarships [get]
func (h *ScholarshipHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var query dto.ScholarshipQuery
	if !bindQuery(c, &query) {
		return
	}
	filter := query.Filter()
	list, err := h.service.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	listJSON(c, list.Items, pageMeta(query.Page, filter.Limit, list.Total))
}

// Get godoc
// @Summary Get scholarship
// @Tags Scholarships
// @Produce json
// @Param id path string true "Scholarship ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scholarships/{id} [get]
func (h *ScholarshipHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create scholarship
// @Tags Scholarships
// @Accept json
// @Produce json
// @Param payload body service.ScholarshipRequest true "Scholarship"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /scholarships [post]
func (h *ScholarshipHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req service.ScholarshipRequest
	if !bindJSON(c, &req, "invalid scholarship payload") {
		return
	}
	item, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update scholarship
// @Tags Scholarships
// @Accept json
// @Produce json
// @Param id path string true "Scholarship ID"
// @Param payload body service.ScholarshipRequest true "Scholarship"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /scholarships/{id} [put]
func (h *ScholarshipHandler) Update(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req service.ScholarshipRequest
	if !bindJSON(c, &req, "invalid scholarship payload") {
		return
	}
	item, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// SetStatus godoc
// @Summary Change scholarship status
// @Tags Scholarships
// @Accept json
// @Produce json
// @Param id path string true "Scholarship ID"
// @Param payload body dto.StatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Router /scholarships/{id}/status [patch]
func (h *ScholarshipHandler) SetStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.StatusRequest
	if !bindJSON(c, &req, "status required") {
		return
	}
	item, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req.Status, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Eligibility godoc
// @Summary Check eligibility
// @Description Students check themselves, staff pass student_id
// @Tags Scholarships
// @Produce json
// @Param id path string true "Scholarship ID"
// @Param student_id query string false "Student profile ID (staff only)"
// @Success 200 {object} response.Envelope
// @Router /scholarships/{id}/eligibility [get]
func (h *ScholarshipHandler) Eligibility(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var query dto.EligibilityQuery
	if !bindQuery(c, &query) {
		return
	}
	result, err := h.eligibility.CheckForActor(c.Request.Context(), query.StudentID, c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
