package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/service"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type reportServiceMock struct {
	filter models.ReportFilter
	format service.ExportFormat
}

func (m *reportServiceMock) Summary(_ context.Context, filter models.ReportFilter, _ *models.Actor) (*models.ScholarshipReport, error) {
	m.filter = filter
	return &models.ScholarshipReport{Filter: filter, StipendsReleasedTotal: decimal.NewFromInt(1500)}, nil
}

func (m *reportServiceMock) Export(_ context.Context, filter models.ReportFilter, format service.ExportFormat, _ *models.Actor) (*service.ExportedReport, error) {
	m.filter, m.format = filter, format
	if format != service.ExportCSV && format != service.ExportPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	return &service.ExportedReport{FileName: "scholarship-report-2024-2025.csv", ContentType: "text/csv", Content: []byte("section,label,value\n")}, nil
}

func TestReportHandlerSummary(t *testing.T) {
	svc := &reportServiceMock{}
	h := NewReportHandler(svc)

	c, w := newGinContext(http.MethodGet, "/reports/summary?academic_year=2024-2025&semester=first", nil)
	asUser(c, "admin-1", models.RoleAdmin)
	h.Summary(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-2025", svc.filter.AcademicYear)
	assert.Equal(t, models.Semester("first"), svc.filter.Semester)
	assert.Contains(t, w.Body.String(), `"stipends_released_total":"1500"`)
}

func TestReportHandlerExport(t *testing.T) {
	svc := &reportServiceMock{}
	h := NewReportHandler(svc)

	c, w := newGinContext(http.MethodGet, "/reports/export?academic_year=2024-2025", nil)
	asUser(c, "admin-1", models.RoleAdmin)
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportCSV, svc.format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="scholarship-report-2024-2025.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "section,label,value\n", w.Body.String())

	c, w = newGinContext(http.MethodGet, "/reports/export?format=xlsx", nil)
	asUser(c, "admin-1", models.RoleAdmin)
	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
