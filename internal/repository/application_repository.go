package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/database"
)

const applicationDetailSelect = `SELECT a.id, a.student_id, a.scholarship_id, a.status, a.current_step, a.remarks, a.amount_received,
a.submitted_at, a.reviewed_by, a.reviewed_at, a.created_at, a.updated_at,
s.name AS scholarship_name, s.type AS scholarship_type, s.fund_source, p.user_id AS student_user_id
FROM scholarship_applications a
JOIN scholarships s ON s.id = a.scholarship_id
JOIN student_profiles p ON p.id = a.student_id`

// openApplicationStatuses are the statuses that block a second application to the same scholarship.
var openApplicationStatuses = []string{
	string(models.ApplicationDraft),
	string(models.ApplicationSubmitted),
	string(models.ApplicationUnderVerification),
	string(models.ApplicationIncomplete),
	string(models.ApplicationVerified),
	string(models.ApplicationUnderEvaluation),
	string(models.ApplicationApproved),
}

// ApplicationStatusUpdate carries the columns rewritten on a lifecycle transition.
type ApplicationStatusUpdate struct {
	ID          string                   `db:"id"`
	Status      models.ApplicationStatus `db:"status"`
	CurrentStep int                      `db:"current_step"`
	Remarks     *string                  `db:"remarks"`
	SubmittedAt *time.Time               `db:"submitted_at"`
	ReviewedBy  *string                  `db:"reviewed_by"`
	ReviewedAt  *time.Time               `db:"reviewed_at"`
	UpdatedAt   time.Time                `db:"updated_at"`
}

// ApplicationRepository persists scholarship applications and their status history.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts an application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.ScholarshipApplication) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = app.CreatedAt
	const query = `INSERT INTO scholarship_applications (id, student_id, scholarship_id, status, current_step, remarks, amount_received, submitted_at, created_at, updated_at)
VALUES (:id, :student_id, :scholarship_id, :status, :current_step, :remarks, :amount_received, :submitted_at, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetDetail returns an application with its scholarship and owner columns.
func (r *ApplicationRepository) GetDetail(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	return r.getDetail(ctx, applicationDetailSelect+` WHERE a.id = $1`, id)
}

// GetDetailForUpdate locks the application row until the transaction ends.
func (r *ApplicationRepository) GetDetailForUpdate(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	return r.getDetail(ctx, applicationDetailSelect+` WHERE a.id = $1 FOR UPDATE OF a`, id)
}

func (r *ApplicationRepository) getDetail(ctx context.Context, query, id string) (*models.ApplicationDetail, error) {
	var detail models.ApplicationDetail
	if err := database.Conn(ctx, r.db).GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return &detail, nil
}

// List returns applications matching the filter with the total count.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where += fmt.Sprintf(" AND a.student_id = $%d", len(args))
	}
	if filter.ScholarshipID != "" {
		args = append(args, filter.ScholarshipID)
		where += fmt.Sprintf(" AND a.scholarship_id = $%d", len(args))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		args = append(args, pq.Array(statuses))
		where += fmt.Sprintf(" AND a.status = ANY($%d)", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	conn := database.Conn(ctx, r.db)
	var items []models.ApplicationDetail
	listQuery := fmt.Sprintf("%s%s ORDER BY a.created_at DESC LIMIT %d OFFSET %d", applicationDetailSelect, where, limit, offset)
	if err := conn.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	var total int
	if err := conn.GetContext(ctx, &total, "SELECT COUNT(*) FROM scholarship_applications a"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return items, total, nil
}

// ExistsOpen reports whether the student already has a non-terminal application for the scholarship.
func (r *ApplicationRepository) ExistsOpen(ctx context.Context, studentID, scholarshipID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM scholarship_applications WHERE student_id = $1 AND scholarship_id = $2 AND status = ANY($3))`
	var exists bool
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exists, query, studentID, scholarshipID, pq.Array(openApplicationStatuses)); err != nil {
		return false, fmt.Errorf("check open application: %w", err)
	}
	return exists, nil
}

// CountApproved returns how many slots of a scholarship are taken.
func (r *ApplicationRepository) CountApproved(ctx context.Context, scholarshipID string) (int, error) {
	const query = `SELECT COUNT(*) FROM scholarship_applications WHERE scholarship_id = $1 AND status = 'approved'`
	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, query, scholarshipID); err != nil {
		return 0, fmt.Errorf("count approved applications: %w", err)
	}
	return count, nil
}

// ListActiveScholarshipIDs returns the scholarships a student currently holds.
func (r *ApplicationRepository) ListActiveScholarshipIDs(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT scholarship_id FROM scholarship_applications WHERE student_id = $1 AND status = 'approved'`
	var ids []string
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ids, query, studentID); err != nil {
		return nil, fmt.Errorf("list active scholarships: %w", err)
	}
	return ids, nil
}

// UpdateStatus writes a lifecycle transition.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, params ApplicationStatusUpdate) error {
	const query = `UPDATE scholarship_applications SET status = :status, current_step = :current_step, remarks = :remarks,
submitted_at = :submitted_at, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, updated_at = :updated_at WHERE id = :id`
	res, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, params)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddAmountReceived increments the running disbursement total.
func (r *ApplicationRepository) AddAmountReceived(ctx context.Context, id string, amount decimal.Decimal, at time.Time) error {
	const query = `UPDATE scholarship_applications SET amount_received = amount_received + $2, updated_at = $3 WHERE id = $1`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, amount, at); err != nil {
		return fmt.Errorf("add amount received: %w", err)
	}
	return nil
}

// InsertHistory appends a status history row.
func (r *ApplicationRepository) InsertHistory(ctx context.Context, entry *models.ApplicationStatusHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO application_status_history (id, application_id, from_status, to_status, changed_by, reason, created_at)
VALUES (:id, :application_id, :from_status, :to_status, :changed_by, :reason, :created_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// ListHistory returns the transitions of an application, oldest first.
func (r *ApplicationRepository) ListHistory(ctx context.Context, applicationID string) ([]models.ApplicationStatusHistory, error) {
	const query = `SELECT id, application_id, from_status, to_status, changed_by, reason, created_at
FROM application_status_history WHERE application_id = $1 ORDER BY created_at ASC`
	var rows []models.ApplicationStatusHistory
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, applicationID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return rows, nil
}
