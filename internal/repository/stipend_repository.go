package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/database"
)

const (
	stipendColumns = `id, application_id, amount, month, academic_year, semester, status, fund_source, hours_worked, released_by, released_at, created_at`
	fundColumns    = `id, fund_source, academic_year, semester, allocated_budget, remaining_budget, updated_at`
)

// StipendRepository persists disbursements and the fund pools they draw from.
type StipendRepository struct {
	db *sqlx.DB
}

// NewStipendRepository constructs the repository.
func NewStipendRepository(db *sqlx.DB) *StipendRepository {
	return &StipendRepository{db: db}
}

// GetFundForUpdate locks a fund pool row.
func (r *StipendRepository) GetFundForUpdate(ctx context.Context, key models.FundKey) (*models.FundTracking, error) {
	const query = `SELECT ` + fundColumns + ` FROM fund_tracking WHERE fund_source = $1 AND academic_year = $2 AND semester = $3 FOR UPDATE`
	var fund models.FundTracking
	if err := database.Conn(ctx, r.db).GetContext(ctx, &fund, query, key.FundSource, key.AcademicYear, key.Semester); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get fund: %w", err)
	}
	return &fund, nil
}

// AllocateFund creates a pool or tops up an existing one. Both budgets grow by amount.
func (r *StipendRepository) AllocateFund(ctx context.Context, key models.FundKey, amount decimal.Decimal, at time.Time) (*models.FundTracking, error) {
	const query = `INSERT INTO fund_tracking (id, fund_source, academic_year, semester, allocated_budget, remaining_budget, updated_at)
VALUES ($1, $2, $3, $4, $5, $5, $6)
ON CONFLICT (fund_source, academic_year, semester) DO UPDATE SET
allocated_budget = fund_tracking.allocated_budget + EXCLUDED.allocated_budget,
remaining_budget = fund_tracking.remaining_budget + EXCLUDED.remaining_budget,
updated_at = EXCLUDED.updated_at
RETURNING ` + fundColumns
	var fund models.FundTracking
	if err := database.Conn(ctx, r.db).GetContext(ctx, &fund, query, uuid.NewString(), key.FundSource, key.AcademicYear, key.Semester, amount, at); err != nil {
		return nil, fmt.Errorf("allocate fund: %w", err)
	}
	return &fund, nil
}

// DeductFund subtracts amount from a locked pool.
func (r *StipendRepository) DeductFund(ctx context.Context, fundID string, amount decimal.Decimal, at time.Time) error {
	const query = `UPDATE fund_tracking SET remaining_budget = remaining_budget - $2, updated_at = $3 WHERE id = $1`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, fundID, amount, at)
	if err != nil {
		return fmt.Errorf("deduct fund: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListFunds returns every pool, newest academic year first.
func (r *StipendRepository) ListFunds(ctx context.Context) ([]models.FundTracking, error) {
	const query = `SELECT ` + fundColumns + ` FROM fund_tracking ORDER BY academic_year DESC, semester ASC, fund_source ASC`
	var funds []models.FundTracking
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &funds, query); err != nil {
		return nil, fmt.Errorf("list funds: %w", err)
	}
	return funds, nil
}

// ExistsForPeriod reports whether a stipend was already recorded for the period.
func (r *StipendRepository) ExistsForPeriod(ctx context.Context, applicationID string, month int, academicYear string, semester models.Semester) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM scholarship_stipends WHERE application_id = $1 AND month = $2 AND academic_year = $3 AND semester = $4)`
	var exists bool
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exists, query, applicationID, month, academicYear, semester); err != nil {
		return false, fmt.Errorf("check stipend period: %w", err)
	}
	return exists, nil
}

// Create inserts a stipend.
func (r *StipendRepository) Create(ctx context.Context, stipend *models.ScholarshipStipend) error {
	if stipend.ID == "" {
		stipend.ID = uuid.NewString()
	}
	if stipend.CreatedAt.IsZero() {
		stipend.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO scholarship_stipends (` + stipendColumns + `)
VALUES (:id, :application_id, :amount, :month, :academic_year, :semester, :status, :fund_source, :hours_worked, :released_by, :released_at, :created_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, stipend); err != nil {
		return fmt.Errorf("create stipend: %w", err)
	}
	return nil
}

// ListByApplication returns the disbursements of an application in period order.
func (r *StipendRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.ScholarshipStipend, error) {
	const query = `SELECT ` + stipendColumns + ` FROM scholarship_stipends WHERE application_id = $1 ORDER BY academic_year ASC, semester ASC, month ASC`
	var rows []models.ScholarshipStipend
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, applicationID); err != nil {
		return nil, fmt.Errorf("list stipends: %w", err)
	}
	return rows, nil
}
