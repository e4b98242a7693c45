package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/service"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type stipendService interface {
	ReleaseStipend(ctx context.Context, req service.ReleaseStipendRequest, actor *models.Actor) (*models.ScholarshipStipend, error)
	ReleaseBatch(ctx context.Context, req service.BatchReleaseRequest, actor *models.Actor) ([]service.BatchReleaseItem, error)
	AllocateFund(ctx context.Context, req service.AllocateFundRequest, actor *models.Actor) (*models.FundTracking, error)
	ListFunds(ctx context.Context, actor *models.Actor) ([]models.FundTracking, error)
	ListStipends(ctx context.Context, applicationID string, actor *models.Actor) ([]models.ScholarshipStipend, error)
}

// StipendHandler exposes disbursement and fund pools.
type StipendHandler struct {
	service stipendService
}

// NewStipendHandler constructs the handler.
func NewStipendHandler(svc stipendService) *StipendHandler {
	return &StipendHandler{service: svc}
}

func toPeriod(p dto.StipendPeriod) service.StipendPeriod {
	return service.StipendPeriod{Month: p.Month, AcademicYear: p.AcademicYear, Semester: p.Semester}
}

// Release godoc
// @Summary Release a monthly stipend
// @Tags Stipends
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ReleaseStipendRequest true "Period"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /applications/{id}/stipends [post]
func (h *StipendHandler) Release(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ReleaseStipendRequest
	if !bindJSON(c, &req, "invalid stipend payload") {
		return
	}
	stipend, err := h.service.ReleaseStipend(c.Request.Context(), service.ReleaseStipendRequest{
		ApplicationID: c.Param("id"),
		Period:        toPeriod(req.StipendPeriod),
		HoursWorked:   req.HoursWorked,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, stipend)
}

// List godoc
// @Summary List stipends of an application
// @Tags Stipends
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/stipends [get]
func (h *StipendHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	rows, err := h.service.ListStipends(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// ReleaseBatch godoc
// @Summary Release a period for a whole scholarship
// @Description Per-application failures are reported in the result rows
// @Tags Stipends
// @Accept json
// @Produce json
// @Param payload body dto.BatchReleaseRequest true "Batch"
// @Success 200 {object} response.Envelope
// @Router /stipends/batch [post]
func (h *StipendHandler) ReleaseBatch(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.BatchReleaseRequest
	if !bindJSON(c, &req, "invalid batch payload") {
		return
	}
	items, err := h.service.ReleaseBatch(c.Request.Context(), service.BatchReleaseRequest{
		ScholarshipID: req.ScholarshipID,
		Period:        toPeriod(req.StipendPeriod),
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	released := 0
	for _, item := range items {
		if item.Error == "" {
			released++
		}
	}
	middleware.SetMeta(c, "released", released)
	middleware.SetMeta(c, "failed", len(items)-released)
	listJSON(c, items, nil)
}

// AllocateFund godoc
// @Summary Allocate to a fund pool
// @Tags Funds
// @Accept json
// @Produce json
// @Param payload body dto.AllocateFundRequest true "Allocation"
// @Success 200 {object} response.Envelope
// @Router /funds [post]
func (h *StipendHandler) AllocateFund(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.AllocateFundRequest
	if !bindJSON(c, &req, "invalid allocation payload") {
		return
	}
	fund, err := h.service.AllocateFund(c.Request.Context(), service.AllocateFundRequest{
		FundSource:   req.FundSource,
		AcademicYear: req.AcademicYear,
		Semester:     req.Semester,
		Amount:       req.Amount,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fund, nil)
}

// ListFunds godoc
// @Summary List fund pools
// @Tags Funds
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /funds [get]
func (h *StipendHandler) ListFunds(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	funds, err := h.service.ListFunds(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, funds, nil)
}
