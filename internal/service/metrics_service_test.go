package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceDomainCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordTransition("verified", "under_evaluation")
	m.RecordTransition("under_evaluation", "approved")
	m.RecordStipendRelease("special_trust_fund", decimal.NewFromInt(500))
	m.RecordNotification(true)
	m.RecordNotification(false)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/applications", http.StatusOK, 20*time.Millisecond)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[family.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["scholarship_application_transitions_total"])
	assert.Equal(t, 500.0, values["scholarship_stipend_amount_released_total"])
	assert.Equal(t, 2.0, values["scholarship_notifications_total"])

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.Transitions)
	assert.Equal(t, uint64(1), snap.StipendsReleased)
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.InDelta(t, 20.0, snap.AverageRequestDurationMs, 0.001)
}

func TestMetricsServiceHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsService()
	m.RecordTransition("submitted", "incomplete")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "scholarship_application_transitions_total"))

	var nilMetrics *MetricsService
	nilMetrics.RecordTransition("a", "b")
	rec = httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
