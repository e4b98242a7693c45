package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApplicationStatus captures the scholarship application lifecycle.
type ApplicationStatus string

const (
	ApplicationDraft             ApplicationStatus = "draft"
	ApplicationSubmitted         ApplicationStatus = "submitted"
	ApplicationUnderVerification ApplicationStatus = "under_verification"
	ApplicationIncomplete        ApplicationStatus = "incomplete"
	ApplicationVerified          ApplicationStatus = "verified"
	ApplicationUnderEvaluation   ApplicationStatus = "under_evaluation"
	ApplicationApproved          ApplicationStatus = "approved"
	ApplicationRejected          ApplicationStatus = "rejected"
	ApplicationEnd               ApplicationStatus = "end"
)

// Finalized reports whether the application has a decision and accepts no further work.
func (s ApplicationStatus) Finalized() bool {
	return s == ApplicationApproved || s == ApplicationRejected || s == ApplicationEnd
}

// Valid reports whether s is a known status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationDraft, ApplicationSubmitted, ApplicationUnderVerification, ApplicationIncomplete,
		ApplicationVerified, ApplicationUnderEvaluation, ApplicationApproved, ApplicationRejected, ApplicationEnd:
		return true
	default:
		return false
	}
}

// Step returns the progress indicator shown to students.
func (s ApplicationStatus) Step() int {
	switch s {
	case ApplicationDraft:
		return 0
	case ApplicationSubmitted:
		return 1
	case ApplicationUnderVerification, ApplicationIncomplete:
		return 2
	case ApplicationVerified:
		return 3
	case ApplicationUnderEvaluation:
		return 4
	default:
		return 5
	}
}

// ScholarshipApplication links a student to a scholarship.
type ScholarshipApplication struct {
	ID             string            `db:"id" json:"id"`
	StudentID      string            `db:"student_id" json:"student_id"`
	ScholarshipID  string            `db:"scholarship_id" json:"scholarship_id"`
	Status         ApplicationStatus `db:"status" json:"status"`
	CurrentStep    int               `db:"current_step" json:"current_step"`
	Remarks        *string           `db:"remarks" json:"remarks,omitempty"`
	AmountReceived decimal.Decimal   `db:"amount_received" json:"amount_received"`
	SubmittedAt    *time.Time        `db:"submitted_at" json:"submitted_at,omitempty"`
	ReviewedBy     *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationDetail joins the scholarship columns the lifecycle needs.
type ApplicationDetail struct {
	ScholarshipApplication
	ScholarshipName string          `db:"scholarship_name" json:"scholarship_name"`
	ScholarshipType ScholarshipType `db:"scholarship_type" json:"scholarship_type"`
	FundSource      string          `db:"fund_source" json:"fund_source"`
	StudentUserID   string          `db:"student_user_id" json:"student_user_id"`
}

// ApplicationFilter constrains listing queries.
type ApplicationFilter struct {
	StudentID     string
	ScholarshipID string
	Status        []ApplicationStatus
	Limit         int
	Offset        int
}

// ApplicationStatusHistory is an append-only record of lifecycle transitions.
type ApplicationStatusHistory struct {
	ID            string            `db:"id" json:"id"`
	ApplicationID string            `db:"application_id" json:"application_id"`
	FromStatus    ApplicationStatus `db:"from_status" json:"from_status"`
	ToStatus      ApplicationStatus `db:"to_status" json:"to_status"`
	ChangedBy     *string           `db:"changed_by" json:"changed_by,omitempty"`
	Reason        *string           `db:"reason" json:"reason,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}
