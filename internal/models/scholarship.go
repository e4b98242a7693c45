package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScholarshipType determines GWA band, document checklist and stipend amount.
type ScholarshipType string

const (
	ScholarshipAcademicFull          ScholarshipType = "academic_full"
	ScholarshipAcademicPartial       ScholarshipType = "academic_partial"
	ScholarshipStudentAssistantship  ScholarshipType = "student_assistantship"
	ScholarshipPerformingArtsFull    ScholarshipType = "performing_arts_full"
	ScholarshipPerformingArtsPartial ScholarshipType = "performing_arts_partial"
	ScholarshipEconomicAssistance    ScholarshipType = "economic_assistance"
)

// ScholarshipTypes lists every supported type in display order.
var ScholarshipTypes = []ScholarshipType{
	ScholarshipAcademicFull,
	ScholarshipAcademicPartial,
	ScholarshipStudentAssistantship,
	ScholarshipPerformingArtsFull,
	ScholarshipPerformingArtsPartial,
	ScholarshipEconomicAssistance,
}

// Valid reports whether t is a known scholarship type.
func (t ScholarshipType) Valid() bool {
	for _, known := range ScholarshipTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ScholarshipStatus controls whether a scholarship accepts applications.
type ScholarshipStatus string

const (
	ScholarshipStatusActive   ScholarshipStatus = "active"
	ScholarshipStatusInactive ScholarshipStatus = "inactive"
	ScholarshipStatusDraft    ScholarshipStatus = "draft"
	ScholarshipStatusUpcoming ScholarshipStatus = "upcoming"
)

// Scholarship is an offering students apply to.
type Scholarship struct {
	ID          string            `db:"id" json:"id"`
	Name        string            `db:"name" json:"name"`
	Description string            `db:"description" json:"description"`
	Type        ScholarshipType   `db:"type" json:"type"`
	Status      ScholarshipStatus `db:"status" json:"status"`
	Deadline    time.Time         `db:"deadline" json:"deadline"`
	Slots       int               `db:"slots" json:"slots"`
	Amount      decimal.Decimal   `db:"amount" json:"amount"`
	FundSource  string            `db:"fund_source" json:"fund_source"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// ScholarshipFilter constrains catalogue listing.
type ScholarshipFilter struct {
	Type   ScholarshipType
	Status ScholarshipStatus
	Limit  int
	Offset int
}
