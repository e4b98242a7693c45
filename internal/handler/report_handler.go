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

type reportService interface {
	Summary(ctx context.Context, filter models.ReportFilter, actor *models.Actor) (*models.ScholarshipReport, error)
	Export(ctx context.Context, filter models.ReportFilter, format service.ExportFormat, actor *models.Actor) (*service.ExportedReport, error)
}

// ReportHandler exposes the scholarship dashboard and its exports.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Summary godoc
// @Summary Scholarship dashboard
// @Description Application, document, interview, stipend and fund rollups
// @Tags Reports
// @Produce json
// @Param academic_year query string false "Academic year, e.g. 2024-2025"
// @Param semester query string false "Semester"
// @Success 200 {object} response.Envelope
// @Router /reports/summary [get]
func (h *ReportHandler) Summary(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var query dto.ReportQuery
	if !bindQuery(c, &query) {
		return
	}
	report, err := h.service.Summary(c.Request.Context(), query.Filter(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Export the dashboard
// @Tags Reports
// @Produce application/pdf
// @Produce text/csv
// @Param format query string false "csv or pdf" default(csv)
// @Param academic_year query string false "Academic year"
// @Param semester query string false "Semester"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /reports/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var query dto.ReportQuery
	if !bindQuery(c, &query) {
		return
	}
	format := service.ExportFormat(query.Format)
	if format == "" {
		format = service.ExportCSV
	}
	report, err := h.service.Export(c.Request.Context(), query.Filter(), format, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, report.FileName, report.ContentType, report.Content)
}
