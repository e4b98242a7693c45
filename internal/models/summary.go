package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReportFilter narrows rollups to an academic period. Empty fields mean all periods.
type ReportFilter struct {
	AcademicYear string   `json:"academic_year,omitempty"`
	Semester     Semester `json:"semester,omitempty"`
}

// StatusCount is a generic label/count pair.
type StatusCount struct {
	Label string `db:"label" json:"label"`
	Count int    `db:"count" json:"count"`
}

// InterviewStats summarises interview outcomes.
type InterviewStats struct {
	Total        int      `db:"total" json:"total"`
	Completed    int      `db:"completed" json:"completed"`
	Cancelled    int      `db:"cancelled" json:"cancelled"`
	NoShow       int      `db:"no_show" json:"no_show"`
	AverageScore *float64 `db:"average_score" json:"average_score,omitempty"`
	NoShowRate   float64  `db:"-" json:"no_show_rate"`
}

// FundUtilisation reports spend against a pool.
type FundUtilisation struct {
	FundSource      string          `db:"fund_source" json:"fund_source"`
	AcademicYear    string          `db:"academic_year" json:"academic_year"`
	Semester        Semester        `db:"semester" json:"semester"`
	AllocatedBudget decimal.Decimal `db:"allocated_budget" json:"allocated_budget"`
	RemainingBudget decimal.Decimal `db:"remaining_budget" json:"remaining_budget"`
	Released        decimal.Decimal `db:"-" json:"released"`
	UtilisationRate float64         `db:"-" json:"utilisation_rate"`
}

// ScholarshipReport is the dashboard rollup.
type ScholarshipReport struct {
	Filter                ReportFilter      `json:"filter"`
	ApplicationsByStatus  []StatusCount     `json:"applications_by_status"`
	ApplicationsByType    []StatusCount     `json:"applications_by_type"`
	DocumentsByStatus     []StatusCount     `json:"documents_by_status"`
	TotalApplications     int               `json:"total_applications"`
	ApprovalRate          float64           `json:"approval_rate"`
	Interviews            InterviewStats    `json:"interviews"`
	StipendsReleasedCount int               `json:"stipends_released_count"`
	StipendsReleasedTotal decimal.Decimal   `json:"stipends_released_total"`
	Funds                 []FundUtilisation `json:"funds"`
	GeneratedAt           time.Time         `json:"generated_at"`
}
