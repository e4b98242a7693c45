package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/database"
)

// StipendTotals aggregates released disbursements.
type StipendTotals struct {
	Count int             `db:"count"`
	Total decimal.Decimal `db:"total"`
}

// ReportRepository runs the read-only rollups behind the reporting dashboard.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// ApplicationsByStatus counts applications per lifecycle status.
func (r *ReportRepository) ApplicationsByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status AS label, COUNT(*) AS count FROM scholarship_applications GROUP BY status ORDER BY status`
	return r.counts(ctx, "applications by status", query)
}

// ApplicationsByType counts applications per scholarship type.
func (r *ReportRepository) ApplicationsByType(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT s.type AS label, COUNT(*) AS count FROM scholarship_applications a
JOIN scholarships s ON s.id = a.scholarship_id GROUP BY s.type ORDER BY s.type`
	return r.counts(ctx, "applications by type", query)
}

// DocumentsByStatus counts documents per verification status.
func (r *ReportRepository) DocumentsByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status AS label, COUNT(*) AS count FROM documents GROUP BY status ORDER BY status`
	return r.counts(ctx, "documents by status", query)
}

func (r *ReportRepository) counts(ctx context.Context, what, query string) ([]models.StatusCount, error) {
	var rows []models.StatusCount
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count %s: %w", what, err)
	}
	return rows, nil
}

// InterviewStats summarises interview outcomes.
func (r *ReportRepository) InterviewStats(ctx context.Context) (*models.InterviewStats, error) {
	const query = `SELECT COUNT(*) AS total,
COUNT(*) FILTER (WHERE status = 'completed') AS completed,
COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled,
COUNT(*) FILTER (WHERE status = 'no_show') AS no_show,
AVG(total_score) FILTER (WHERE status = 'completed') AS average_score
FROM interviews`
	var stats models.InterviewStats
	if err := database.Conn(ctx, r.db).GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("interview stats: %w", err)
	}
	return &stats, nil
}

// StipendTotals sums released stipends within the period filter.
func (r *ReportRepository) StipendTotals(ctx context.Context, filter models.ReportFilter) (*StipendTotals, error) {
	where, args := periodClause(filter)
	query := `SELECT COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total FROM scholarship_stipends WHERE status = 'released'` + where
	var totals StipendTotals
	if err := database.Conn(ctx, r.db).GetContext(ctx, &totals, query, args...); err != nil {
		return nil, fmt.Errorf("stipend totals: %w", err)
	}
	return &totals, nil
}

// Funds returns the pools within the period filter.
func (r *ReportRepository) Funds(ctx context.Context, filter models.ReportFilter) ([]models.FundUtilisation, error) {
	where, args := periodClause(filter)
	query := `SELECT fund_source, academic_year, semester, allocated_budget, remaining_budget FROM fund_tracking WHERE 1=1` + where +
		` ORDER BY academic_year DESC, semester ASC, fund_source ASC`
	var rows []models.FundUtilisation
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("fund utilisation: %w", err)
	}
	return rows, nil
}

func periodClause(filter models.ReportFilter) (string, []interface{}) {
	var (
		where string
		args  []interface{}
	)
	if filter.AcademicYear != "" {
		args = append(args, filter.AcademicYear)
		where += fmt.Sprintf(" AND academic_year = $%d", len(args))
	}
	if filter.Semester != "" {
		args = append(args, filter.Semester)
		where += fmt.Sprintf(" AND semester = $%d", len(args))
	}
	return where, args
}
