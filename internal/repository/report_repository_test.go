package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
)

func TestReportRepositoryApplicationsByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status AS label, COUNT(*) AS count FROM scholarship_applications GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"label", "count"}).AddRow("approved", 3).AddRow("submitted", 5))

	rows, err := repo.ApplicationsByStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.StatusCount{Label: "approved", Count: 3}, rows[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryInterviewStatsNullAverage(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE status = 'no_show') AS no_show")).
		WillReturnRows(sqlmock.NewRows([]string{"total", "completed", "cancelled", "no_show", "average_score"}).AddRow(0, 0, 0, 0, nil))

	stats, err := repo.InterviewStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Nil(t, stats.AverageScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryPeriodFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)
	ctx := context.Background()
	filter := models.ReportFilter{AcademicYear: "2025-2026", Semester: models.SemesterSecond}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'released' AND academic_year = $1 AND semester = $2")).
		WithArgs("2025-2026", models.SemesterSecond).
		WillReturnRows(sqlmock.NewRows([]string{"count", "total"}).AddRow(4, "1600.00"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fund_tracking WHERE 1=1 AND academic_year = $1 AND semester = $2")).
		WithArgs("2025-2026", models.SemesterSecond).
		WillReturnRows(sqlmock.NewRows([]string{"fund_source", "academic_year", "semester", "allocated_budget", "remaining_budget"}).
			AddRow("general_fund", "2025-2026", "second", "5000.00", "3400.00"))

	totals, err := repo.StipendTotals(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 4, totals.Count)
	assert.Equal(t, "1600", totals.Total.String())

	funds, err := repo.Funds(ctx, filter)
	require.NoError(t, err)
	require.Len(t, funds, 1)
	assert.Equal(t, "3400", funds[0].RemainingBudget.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryNoFilterHasNoArgs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM scholarship_stipends WHERE status = 'released'")).
		WithArgs().
		WillReturnRows(sqlmock.NewRows([]string{"count", "total"}).AddRow(0, "0"))

	totals, err := repo.StipendTotals(context.Background(), models.ReportFilter{})
	require.NoError(t, err)
	assert.True(t, totals.Total.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
