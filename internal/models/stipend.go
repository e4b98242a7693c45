package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Semester identifies the academic term of a disbursement.
type Semester string

const (
	SemesterFirst  Semester = "first"
	SemesterSecond Semester = "second"
	SemesterSummer Semester = "summer"
)

// Valid reports whether s is a known semester.
func (s Semester) Valid() bool {
	return s == SemesterFirst || s == SemesterSecond || s == SemesterSummer
}

// StipendStatus tracks disbursement state.
type StipendStatus string

const (
	StipendPending  StipendStatus = "pending"
	StipendReleased StipendStatus = "released"
)

// ScholarshipStipend is one periodic disbursement. Unique per (application, month, academic year, semester).
type ScholarshipStipend struct {
	ID            string          `db:"id" json:"id"`
	ApplicationID string          `db:"application_id" json:"application_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Month         int             `db:"month" json:"month"`
	AcademicYear  string          `db:"academic_year" json:"academic_year"`
	Semester      Semester        `db:"semester" json:"semester"`
	Status        StipendStatus   `db:"status" json:"status"`
	FundSource    string          `db:"fund_source" json:"fund_source"`
	HoursWorked   *float64        `db:"hours_worked" json:"hours_worked,omitempty"`
	ReleasedBy    *string         `db:"released_by" json:"released_by,omitempty"`
	ReleasedAt    *time.Time      `db:"released_at" json:"released_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// FundTracking is a budget pool keyed by (fund source, academic year, semester).
type FundTracking struct {
	ID              string          `db:"id" json:"id"`
	FundSource      string          `db:"fund_source" json:"fund_source"`
	AcademicYear    string          `db:"academic_year" json:"academic_year"`
	Semester        Semester        `db:"semester" json:"semester"`
	AllocatedBudget decimal.Decimal `db:"allocated_budget" json:"allocated_budget"`
	RemainingBudget decimal.Decimal `db:"remaining_budget" json:"remaining_budget"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// FundKey identifies a fund pool.
type FundKey struct {
	FundSource   string
	AcademicYear string
	Semester     Semester
}
