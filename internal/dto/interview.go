package dto

import (
	"time"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// ScheduleInterviewRequest books an interview.
type ScheduleInterviewRequest struct {
	ApplicationID string    `json:"application_id" binding:"required,uuid"`
	InterviewerID string    `json:"interviewer_id" binding:"required,uuid"`
	Schedule      time.Time `json:"schedule" binding:"required"`
	Location      string    `json:"location" binding:"required,max=255"`
}

// RescheduleInterviewRequest moves an interview.
type RescheduleInterviewRequest struct {
	Schedule time.Time `json:"schedule" binding:"required"`
	Reason   string    `json:"reason" binding:"required,max=1000"`
}

// CompleteInterviewRequest records scores and a verdict.
type CompleteInterviewRequest struct {
	Scores         models.InterviewScores         `json:"interview_scores"`
	Recommendation models.InterviewRecommendation `json:"recommendation" binding:"required"`
	Remarks        string                         `json:"remarks" binding:"max=2000"`
}

// CancelInterviewRequest cancels an interview.
type CancelInterviewRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

// InterviewQuery filters GET /interviews.
type InterviewQuery struct {
	ApplicationID string     `form:"application_id" binding:"omitempty,uuid"`
	InterviewerID string     `form:"interviewer_id" binding:"omitempty,uuid"`
	Status        []string   `form:"status"`
	From          *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To            *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// Filter converts the query into a repository filter.
func (q InterviewQuery) Filter() models.InterviewFilter {
	filter := models.InterviewFilter{
		ApplicationID: q.ApplicationID,
		InterviewerID: q.InterviewerID,
		From:          q.From,
		To:            q.To,
	}
	for _, s := range splitCSV(q.Status) {
		filter.Status = append(filter.Status, models.InterviewStatus(s))
	}
	return filter
}
