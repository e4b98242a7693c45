package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/service"
)

type stipendServiceMock struct {
	release  service.ReleaseStipendRequest
	batch    service.BatchReleaseRequest
	allocate service.AllocateFundRequest
}

func (m *stipendServiceMock) ReleaseStipend(_ context.Context, req service.ReleaseStipendRequest, _ *models.Actor) (*models.ScholarshipStipend, error) {
	m.release = req
	return &models.ScholarshipStipend{ApplicationID: req.ApplicationID}, nil
}

func (m *stipendServiceMock) ReleaseBatch(_ context.Context, req service.BatchReleaseRequest, _ *models.Actor) ([]service.BatchReleaseItem, error) {
	m.batch = req
	return []service.BatchReleaseItem{
		{ApplicationID: "app-1", Stipend: &models.ScholarshipStipend{}},
		{ApplicationID: "app-2", Error: "insufficient fund balance"},
	}, nil
}

func (m *stipendServiceMock) AllocateFund(_ context.Context, req service.AllocateFundRequest, _ *models.Actor) (*models.FundTracking, error) {
	m.allocate = req
	return &models.FundTracking{FundSource: req.FundSource}, nil
}

func (m *stipendServiceMock) ListFunds(context.Context, *models.Actor) ([]models.FundTracking, error) {
	return []models.FundTracking{}, nil
}

func (m *stipendServiceMock) ListStipends(context.Context, string, *models.Actor) ([]models.ScholarshipStipend, error) {
	return []models.ScholarshipStipend{}, nil
}

func TestStipendHandlerRelease(t *testing.T) {
	svc := &stipendServiceMock{}
	h := NewStipendHandler(svc)

	c, w := newGinContext(http.MethodPost, "/applications/app-1/stipends", mustJSON(t, map[string]interface{}{
		"month": 8, "academic_year": "2024-2025", "semester": "first", "hours_worked": 20,
	}))
	c.AddParam("id", "app-1")
	asUser(c, "staff-1", models.RoleOSASStaff)
	h.Release(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "app-1", svc.release.ApplicationID)
	assert.Equal(t, 8, svc.release.Period.Month)
	assert.Equal(t, models.Semester("first"), svc.release.Period.Semester)
	assert.Equal(t, 20.0, svc.release.HoursWorked)

	c, w = newGinContext(http.MethodPost, "/applications/app-1/stipends", mustJSON(t, map[string]interface{}{
		"month": 13, "academic_year": "2024-2025", "semester": "first",
	}))
	asUser(c, "staff-1", models.RoleOSASStaff)
	h.Release(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStipendHandlerBatchReportsCounts(t *testing.T) {
	svc := &stipendServiceMock{}
	h := NewStipendHandler(svc)

	c, w := newGinContext(http.MethodPost, "/stipends/batch", mustJSON(t, map[string]interface{}{
		"scholarship_id": testScholarshipID, "month": 9, "academic_year": "2024-2025", "semester": "first",
	}))
	middleware.WithResponseMeta()(c)
	asUser(c, "staff-1", models.RoleOSASStaff)
	h.ReleaseBatch(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testScholarshipID, svc.batch.ScholarshipID)
	env := decode(t, w)
	assert.Equal(t, 1.0, env.Meta["released"])
	assert.Equal(t, 1.0, env.Meta["failed"])
	assert.Contains(t, env.Meta, "processing_time_ms")
}

func TestStipendHandlerAllocateFund(t *testing.T) {
	svc := &stipendServiceMock{}
	h := NewStipendHandler(svc)

	c, w := newGinContext(http.MethodPost, "/funds", mustJSON(t, map[string]interface{}{
		"fund_source": "special_trust_fund", "academic_year": "2024-2025", "semester": "first", "amount": "250000.50",
	}))
	asUser(c, "admin-1", models.RoleAdmin)
	h.AllocateFund(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.allocate.Amount.Equal(decimal.RequireFromString("250000.50")))
}
