package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/database"
)

const studentProfileColumns = `id, user_id, student_number, first_name, last_name, course, year_level, units, current_gwa, enrollment_status, monthly_household_income, indigency_certificate_valid_until, performing_group, membership_started_at, created_at, updated_at`

// StudentProfileRepository reads and writes academic records used by eligibility checks.
type StudentProfileRepository struct {
	db *sqlx.DB
}

// NewStudentProfileRepository constructs the repository.
func NewStudentProfileRepository(db *sqlx.DB) *StudentProfileRepository {
	return &StudentProfileRepository{db: db}
}

// GetProfileByID returns a profile by id.
func (r *StudentProfileRepository) GetProfileByID(ctx context.Context, id string) (*models.StudentProfile, error) {
	const query = `SELECT ` + studentProfileColumns + ` FROM student_profiles WHERE id = $1`
	var profile models.StudentProfile
	if err := database.Conn(ctx, r.db).GetContext(ctx, &profile, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get student profile: %w", err)
	}
	return &profile, nil
}

// GetProfileByUserID returns the profile owned by a user account.
func (r *StudentProfileRepository) GetProfileByUserID(ctx context.Context, userID string) (*models.StudentProfile, error) {
	const query = `SELECT ` + studentProfileColumns + ` FROM student_profiles WHERE user_id = $1`
	var profile models.StudentProfile
	if err := database.Conn(ctx, r.db).GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get student profile by user: %w", err)
	}
	return &profile, nil
}

// StudentNumberExists reports whether a student number is taken.
func (r *StudentProfileRepository) StudentNumberExists(ctx context.Context, studentNumber string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM student_profiles WHERE student_number = $1)`
	var exists bool
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exists, query, studentNumber); err != nil {
		return false, fmt.Errorf("check student number: %w", err)
	}
	return exists, nil
}

// CreateProfile inserts a profile row.
func (r *StudentProfileRepository) CreateProfile(ctx context.Context, profile *models.StudentProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	const query = `INSERT INTO student_profiles (id, user_id, student_number, first_name, last_name, course, year_level, units, current_gwa, enrollment_status, monthly_household_income, indigency_certificate_valid_until, performing_group, membership_started_at, created_at, updated_at)
VALUES (:id, :user_id, :student_number, :first_name, :last_name, :course, :year_level, :units, :current_gwa, :enrollment_status, :monthly_household_income, :indigency_certificate_valid_until, :performing_group, :membership_started_at, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("create student profile: %w", err)
	}
	return nil
}

// UpdateAcademicRecord refreshes the fields maintained by the registrar.
func (r *StudentProfileRepository) UpdateAcademicRecord(ctx context.Context, profile *models.StudentProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE student_profiles SET units = :units, current_gwa = :current_gwa, enrollment_status = :enrollment_status,
monthly_household_income = :monthly_household_income, indigency_certificate_valid_until = :indigency_certificate_valid_until,
performing_group = :performing_group, membership_started_at = :membership_started_at, updated_at = :updated_at WHERE id = :id`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("update academic record: %w", err)
	}
	return nil
}

// ListPriorTermGrades returns the grades of the most recent completed term.
func (r *StudentProfileRepository) ListPriorTermGrades(ctx context.Context, studentID string) ([]models.SubjectGrade, error) {
	const query = `SELECT id, student_id, subject_code, grade, remark, term FROM subject_grades
WHERE student_id = $1 AND term = (SELECT MAX(term) FROM subject_grades WHERE student_id = $1)
ORDER BY subject_code`
	var grades []models.SubjectGrade
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list prior term grades: %w", err)
	}
	return grades, nil
}

// ReplaceTermGrades swaps the grade rows of one term.
func (r *StudentProfileRepository) ReplaceTermGrades(ctx context.Context, studentID, term string, grades []models.SubjectGrade) error {
	conn := database.Conn(ctx, r.db)
	if _, err := conn.ExecContext(ctx, `DELETE FROM subject_grades WHERE student_id = $1 AND term = $2`, studentID, term); err != nil {
		return fmt.Errorf("clear term grades: %w", err)
	}
	const insert = `INSERT INTO subject_grades (id, student_id, subject_code, grade, remark, term) VALUES (:id, :student_id, :subject_code, :grade, :remark, :term)`
	for i := range grades {
		grade := grades[i]
		if grade.ID == "" {
			grade.ID = uuid.NewString()
		}
		grade.StudentID = studentID
		grade.Term = term
		if _, err := conn.NamedExecContext(ctx, insert, grade); err != nil {
			return fmt.Errorf("insert term grade %s: %w", grade.SubjectCode, err)
		}
	}
	return nil
}
