package service

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// GWABand is an inclusive GWA range on the Philippine scale (lower is better).
type GWABand struct {
	Min float64
	Max float64
}

// Contains reports whether gwa lies in the band.
func (b GWABand) Contains(gwa float64) bool {
	return gwa >= b.Min && gwa <= b.Max
}

const (
	minimumUnitLoad          = 12
	fullLoadUnits            = 18
	assistantshipMaxUnits    = 21
	maxSubjectGradeAcademic  = 1.75
	failingGradeThreshold    = 3.00
	economicAssistanceMaxGWA = 2.25
)

var (
	academicFullBand    = GWABand{Min: 1.000, Max: 1.450}
	academicPartialBand = GWABand{Min: 1.460, Max: 1.750}
)

// DocumentRequirement pairs a document type with the office that verifies it.
type DocumentRequirement struct {
	Type         models.DocumentType `json:"type"`
	VerifierRole models.UserRole     `json:"verifier_role"`
}

// verifierRoles is the single source for which office verifies which document.
var verifierRoles = map[models.DocumentType]models.UserRole{
	models.DocumentCertificateOfRegistration: models.RoleOSASStaff,
	models.DocumentGradeReport:               models.RoleOSASStaff,
	models.DocumentCertificateOfIndigency:    models.RoleOSASStaff,
	models.DocumentGoodMoral:                 models.RoleGuidanceCounselor,
	models.DocumentCertificateOfMembership:   models.RoleCoachAdviser,
	models.DocumentRecommendationLetter:      models.RoleCoachAdviser,
}

var requiredDocuments = map[models.ScholarshipType][]models.DocumentType{
	models.ScholarshipAcademicFull: {
		models.DocumentCertificateOfRegistration,
		models.DocumentGradeReport,
		models.DocumentGoodMoral,
	},
	models.ScholarshipAcademicPartial: {
		models.DocumentCertificateOfRegistration,
		models.DocumentGradeReport,
		models.DocumentGoodMoral,
	},
	models.ScholarshipStudentAssistantship: {
		models.DocumentCertificateOfRegistration,
		models.DocumentGradeReport,
	},
	models.ScholarshipPerformingArtsFull: {
		models.DocumentCertificateOfRegistration,
		models.DocumentCertificateOfMembership,
		models.DocumentRecommendationLetter,
	},
	models.ScholarshipPerformingArtsPartial: {
		models.DocumentCertificateOfRegistration,
		models.DocumentCertificateOfMembership,
	},
	models.ScholarshipEconomicAssistance: {
		models.DocumentCertificateOfRegistration,
		models.DocumentCertificateOfIndigency,
		models.DocumentGradeReport,
	},
}

var monthlyStipends = map[models.ScholarshipType]decimal.Decimal{
	models.ScholarshipAcademicFull:          decimal.NewFromInt(500),
	models.ScholarshipAcademicPartial:       decimal.NewFromInt(300),
	models.ScholarshipPerformingArtsFull:    decimal.NewFromInt(500),
	models.ScholarshipPerformingArtsPartial: decimal.NewFromInt(300),
	models.ScholarshipEconomicAssistance:    decimal.NewFromInt(400),
}

var defaultFundSources = map[models.ScholarshipType]string{
	models.ScholarshipAcademicFull:          "special_trust_fund",
	models.ScholarshipAcademicPartial:       "special_trust_fund",
	models.ScholarshipStudentAssistantship:  "student_assistantship_fund",
	models.ScholarshipPerformingArtsFull:    "cultural_affairs_fund",
	models.ScholarshipPerformingArtsPartial: "cultural_affairs_fund",
	models.ScholarshipEconomicAssistance:    "general_fund",
}

var membershipMonths = map[models.ScholarshipType]int{
	models.ScholarshipPerformingArtsFull:    12,
	models.ScholarshipPerformingArtsPartial: 4,
}

// RequiredDocuments returns the checklist for a scholarship type, in policy order.
// The returned slice is a copy.
func RequiredDocuments(t models.ScholarshipType) []DocumentRequirement {
	types := requiredDocuments[t]
	out := make([]DocumentRequirement, 0, len(types))
	for _, dt := range types {
		out = append(out, DocumentRequirement{Type: dt, VerifierRole: verifierRoles[dt]})
	}
	return out
}

// RequiredDocumentMap returns documentType → verifier role for a scholarship type.
func RequiredDocumentMap(t models.ScholarshipType) map[models.DocumentType]models.UserRole {
	out := make(map[models.DocumentType]models.UserRole, len(requiredDocuments[t]))
	for _, dt := range requiredDocuments[t] {
		out[dt] = verifierRoles[dt]
	}
	return out
}

// VerifierRoleFor returns the office responsible for a document type.
func VerifierRoleFor(dt models.DocumentType) (models.UserRole, bool) {
	role, ok := verifierRoles[dt]
	return role, ok
}

// MembershipMonthsRequired returns the minimum membership for performing arts types.
func MembershipMonthsRequired(t models.ScholarshipType) (int, bool) {
	months, ok := membershipMonths[t]
	return months, ok
}

// DefaultFundSource returns the pool a scholarship type draws from when none is set.
func DefaultFundSource(t models.ScholarshipType) string {
	return defaultFundSources[t]
}

// GWACeiling returns the worst GWA a scholar of type t may keep, if the type has one.
func GWACeiling(t models.ScholarshipType) (float64, bool) {
	switch t {
	case models.ScholarshipAcademicFull:
		return academicFullBand.Max, true
	case models.ScholarshipAcademicPartial:
		return academicPartialBand.Max, true
	case models.ScholarshipEconomicAssistance:
		return economicAssistanceMaxGWA, true
	default:
		return 0, false
	}
}

// CalculateMonthlyStipend returns the periodic amount for a scholarship type.
// Assistantships are paid hoursWorked × hourlyRate; other types use the fixed table.
func CalculateMonthlyStipend(t models.ScholarshipType, hoursWorked float64, hourlyRate decimal.Decimal) (decimal.Decimal, bool) {
	if t == models.ScholarshipStudentAssistantship {
		if hoursWorked <= 0 {
			return decimal.Zero, false
		}
		return hourlyRate.Mul(decimal.NewFromFloat(hoursWorked)).Round(2), true
	}
	amount, ok := monthlyStipends[t]
	return amount, ok
}
