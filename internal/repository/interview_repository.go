package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/database"
)

const interviewColumns = `id, application_id, interviewer_id, schedule, location, status, interview_scores, total_score, recommendation, remarks, reschedule_history, cancel_reason, created_by, completed_at, created_at, updated_at`

// InterviewRepository persists interviews.
type InterviewRepository struct {
	db *sqlx.DB
}

// NewInterviewRepository constructs the repository.
func NewInterviewRepository(db *sqlx.DB) *InterviewRepository {
	return &InterviewRepository{db: db}
}

// LockInterviewer serialises scheduling for one interviewer until the transaction ends.
func (r *InterviewRepository) LockInterviewer(ctx context.Context, interviewerID string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, "interviewer:"+interviewerID); err != nil {
		return fmt.Errorf("lock interviewer: %w", err)
	}
	return nil
}

// GetByID returns an interview.
func (r *InterviewRepository) GetByID(ctx context.Context, id string) (*models.Interview, error) {
	return r.get(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id = $1`, id)
}

// GetByIDForUpdate locks an interview row.
func (r *InterviewRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Interview, error) {
	return r.get(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id = $1 FOR UPDATE`, id)
}

// GetActiveByApplication returns the scheduled or rescheduled interview of an application.
func (r *InterviewRepository) GetActiveByApplication(ctx context.Context, applicationID string) (*models.Interview, error) {
	return r.get(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE application_id = $1 AND status IN ('scheduled', 'rescheduled') LIMIT 1`, applicationID)
}

func (r *InterviewRepository) get(ctx context.Context, query string, args ...interface{}) (*models.Interview, error) {
	var interview models.Interview
	if err := database.Conn(ctx, r.db).GetContext(ctx, &interview, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get interview: %w", err)
	}
	return &interview, nil
}

// FindConflicts returns active interviews of an interviewer strictly within buffer of at.
func (r *InterviewRepository) FindConflicts(ctx context.Context, interviewerID string, at time.Time, buffer time.Duration, excludeID string) ([]models.Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews
WHERE interviewer_id = $1 AND status IN ('scheduled', 'rescheduled')
AND schedule > $2 AND schedule < $3`
	args := []interface{}{interviewerID, at.Add(-buffer), at.Add(buffer)}
	if excludeID != "" {
		query += ` AND id <> $4`
		args = append(args, excludeID)
	}
	query += ` ORDER BY schedule ASC`
	var rows []models.Interview
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find interview conflicts: %w", err)
	}
	return rows, nil
}

// Create inserts an interview.
func (r *InterviewRepository) Create(ctx context.Context, interview *models.Interview) error {
	const query = `INSERT INTO interviews (` + interviewColumns + `)
VALUES (:id, :application_id, :interviewer_id, :schedule, :location, :status, :interview_scores, :total_score, :recommendation, :remarks, :reschedule_history, :cancel_reason, :created_by, :completed_at, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, interview); err != nil {
		return fmt.Errorf("create interview: %w", err)
	}
	return nil
}

// Update rewrites the mutable interview columns.
func (r *InterviewRepository) Update(ctx context.Context, interview *models.Interview) error {
	const query = `UPDATE interviews SET schedule = :schedule, location = :location, status = :status, interview_scores = :interview_scores,
total_score = :total_score, recommendation = :recommendation, remarks = :remarks, reschedule_history = :reschedule_history,
cancel_reason = :cancel_reason, completed_at = :completed_at, updated_at = :updated_at WHERE id = :id`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, interview); err != nil {
		return fmt.Errorf("update interview: %w", err)
	}
	return nil
}

// List returns interviews matching the filter ordered by schedule.
func (r *InterviewRepository) List(ctx context.Context, filter models.InterviewFilter) ([]models.Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE 1=1`
	var args []interface{}
	if filter.ApplicationID != "" {
		args = append(args, filter.ApplicationID)
		query += fmt.Sprintf(" AND application_id = $%d", len(args))
	}
	if filter.InterviewerID != "" {
		args = append(args, filter.InterviewerID)
		query += fmt.Sprintf(" AND interviewer_id = $%d", len(args))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		args = append(args, pq.Array(statuses))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND schedule >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND schedule < $%d", len(args))
	}
	query += " ORDER BY schedule ASC"

	var rows []models.Interview
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	return rows, nil
}
