package dto

import "github.com/noah-isme/scholarship-api/internal/models"

// UserQuery filters GET /users.
type UserQuery struct {
	Role     string `form:"role"`
	Search   string `form:"search"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// LogoutRequest carries the refresh token to revoke.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// StatusRequest changes a catalogue status.
type StatusRequest struct {
	Status models.ScholarshipStatus `json:"status" binding:"required"`
}

// ScholarshipQuery filters GET /scholarships.
type ScholarshipQuery struct {
	Type     string `form:"type"`
	Status   string `form:"status"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// Filter converts the query into a repository filter.
func (q ScholarshipQuery) Filter() models.ScholarshipFilter {
	page, size := normalisePage(q.Page, q.PageSize)
	return models.ScholarshipFilter{
		Type:   models.ScholarshipType(q.Type),
		Status: models.ScholarshipStatus(q.Status),
		Limit:  size,
		Offset: (page - 1) * size,
	}
}

// Filter converts the query into a user filter.
func (q UserQuery) Filter() models.UserFilter {
	page, size := normalisePage(q.Page, q.PageSize)
	filter := models.UserFilter{Search: q.Search, Page: page, PageSize: size}
	if q.Role != "" {
		role := models.UserRole(q.Role)
		filter.Role = &role
	}
	return filter
}
