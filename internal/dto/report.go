package dto

import "github.com/noah-isme/scholarship-api/internal/models"

// ReportQuery scopes the dashboard and exports to a period.
type ReportQuery struct {
	AcademicYear string `form:"academic_year"`
	Semester     string `form:"semester"`
	Format       string `form:"format"`
}

// Filter converts the query into a report filter.
func (q ReportQuery) Filter() models.ReportFilter {
	return models.ReportFilter{AcademicYear: q.AcademicYear, Semester: models.Semester(q.Semester)}
}
