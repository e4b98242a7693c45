package models

import "time"

// EnrollmentStatus captures a student's standing for the current term.
type EnrollmentStatus string

const (
	EnrollmentEnrolled    EnrollmentStatus = "enrolled"
	EnrollmentNotEnrolled EnrollmentStatus = "not_enrolled"
	EnrollmentOnLeave     EnrollmentStatus = "on_leave"
	EnrollmentGraduated   EnrollmentStatus = "graduated"
)

// StudentProfile holds the academic and socio-economic data read by eligibility checks.
// CurrentGWA uses the Philippine scale where 1.00 is the highest mark.
type StudentProfile struct {
	ID                     string           `db:"id" json:"id"`
	UserID                 string           `db:"user_id" json:"user_id"`
	StudentNumber          string           `db:"student_number" json:"student_number"`
	FirstName              string           `db:"first_name" json:"first_name"`
	LastName               string           `db:"last_name" json:"last_name"`
	Course                 string           `db:"course" json:"course"`
	YearLevel              int              `db:"year_level" json:"year_level"`
	Units                  int              `db:"units" json:"units"`
	CurrentGWA             *float64         `db:"current_gwa" json:"current_gwa,omitempty"`
	EnrollmentStatus       EnrollmentStatus `db:"enrollment_status" json:"enrollment_status"`
	MonthlyHouseholdIncome *float64         `db:"monthly_household_income" json:"monthly_household_income,omitempty"`
	IndigencyValidUntil    *time.Time       `db:"indigency_certificate_valid_until" json:"indigency_certificate_valid_until,omitempty"`
	PerformingGroup        *string          `db:"performing_group" json:"performing_group,omitempty"`
	MembershipStartedAt    *time.Time       `db:"membership_started_at" json:"membership_started_at,omitempty"`
	CreatedAt              time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time        `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last names.
func (p StudentProfile) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// GradeRemark marks how a subject ended in the prior term.
type GradeRemark string

const (
	RemarkPassed     GradeRemark = "PASSED"
	RemarkFailed     GradeRemark = "FAILED"
	RemarkIncomplete GradeRemark = "INC"
	RemarkDropped    GradeRemark = "DRP"
	RemarkDeferred   GradeRemark = "DEF"
)

// SubjectGrade is a prior-term grade row. Grade is nil for INC/DRP/DEF marks.
type SubjectGrade struct {
	ID          string      `db:"id" json:"id"`
	StudentID   string      `db:"student_id" json:"student_id"`
	SubjectCode string      `db:"subject_code" json:"subject_code"`
	Grade       *float64    `db:"grade" json:"grade,omitempty"`
	Remark      GradeRemark `db:"remark" json:"remark"`
	Term        string      `db:"term" json:"term"`
}
