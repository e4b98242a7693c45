package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// StipendPeriod identifies one disbursement month.
type StipendPeriod struct {
	Month        int             `json:"month" binding:"required,min=1,max=12"`
	AcademicYear string          `json:"academic_year" binding:"required"`
	Semester     models.Semester `json:"semester" binding:"required"`
}

// ReleaseStipendRequest is the POST /applications/:id/stipends payload.
type ReleaseStipendRequest struct {
	StipendPeriod
	HoursWorked float64 `json:"hours_worked" binding:"min=0"`
}

// BatchReleaseRequest releases one period across a scholarship.
type BatchReleaseRequest struct {
	ScholarshipID string `json:"scholarship_id" binding:"required,uuid"`
	StipendPeriod
}

// AllocateFundRequest tops up a fund pool.
type AllocateFundRequest struct {
	FundSource   string          `json:"fund_source" binding:"required,max=100"`
	AcademicYear string          `json:"academic_year" binding:"required"`
	Semester     models.Semester `json:"semester" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
}
