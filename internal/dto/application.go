package dto

import "github.com/noah-isme/scholarship-api/internal/models"

// ApplyRequest is the POST /applications payload.
type ApplyRequest struct {
	ScholarshipID string `json:"scholarship_id" binding:"required,uuid"`
	SaveAsDraft   bool   `json:"save_as_draft"`
}

// TransitionRequest moves an application to a new status. Reason is required
// when rejecting.
type TransitionRequest struct {
	Status models.ApplicationStatus `json:"status" binding:"required"`
	Reason string                   `json:"reason" binding:"max=1000"`
}

// ApplicationQuery filters GET /applications.
type ApplicationQuery struct {
	StudentID     string   `form:"student_id" binding:"omitempty,uuid"`
	ScholarshipID string   `form:"scholarship_id" binding:"omitempty,uuid"`
	Status        []string `form:"status"`
	Page          int      `form:"page" binding:"omitempty,min=1"`
	PageSize      int      `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// Filter converts the query into a repository filter.
func (q ApplicationQuery) Filter() models.ApplicationFilter {
	page, size := normalisePage(q.Page, q.PageSize)
	filter := models.ApplicationFilter{
		StudentID:     q.StudentID,
		ScholarshipID: q.ScholarshipID,
		Limit:         size,
		Offset:        (page - 1) * size,
	}
	for _, s := range splitCSV(q.Status) {
		filter.Status = append(filter.Status, models.ApplicationStatus(s))
	}
	return filter
}

// EligibilityQuery selects the student for GET /scholarships/:id/eligibility.
type EligibilityQuery struct {
	StudentID string `form:"student_id" binding:"omitempty,uuid"`
}
