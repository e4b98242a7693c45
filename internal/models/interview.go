package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// InterviewStatus tracks the interview state machine.
type InterviewStatus string

const (
	InterviewScheduled   InterviewStatus = "scheduled"
	InterviewRescheduled InterviewStatus = "rescheduled"
	InterviewCompleted   InterviewStatus = "completed"
	InterviewCancelled   InterviewStatus = "cancelled"
	InterviewNoShow      InterviewStatus = "no_show"
)

// Active reports whether the interview still occupies the interviewer's calendar.
func (s InterviewStatus) Active() bool {
	return s == InterviewScheduled || s == InterviewRescheduled
}

// InterviewRecommendation is the interviewer's verdict.
type InterviewRecommendation string

const (
	RecommendApproved InterviewRecommendation = "approved"
	RecommendRejected InterviewRecommendation = "rejected"
	RecommendPending  InterviewRecommendation = "pending"
)

// InterviewScores maps a criterion to its raw score value.
type InterviewScores map[string]interface{}

// Value implements driver.Valuer.
func (s InterviewScores) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *InterviewScores) Scan(src interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*s = InterviewScores{}
		return nil
	}
	return json.Unmarshal(raw, s)
}

// RescheduleEntry is one immutable line of an interview's reschedule history.
type RescheduleEntry struct {
	OldSchedule time.Time `json:"old_schedule"`
	NewSchedule time.Time `json:"new_schedule"`
	Reason      string    `json:"reason"`
	By          string    `json:"by"`
	At          time.Time `json:"at"`
}

// RescheduleHistory is stored as a JSON array.
type RescheduleHistory []RescheduleEntry

// Value implements driver.Valuer.
func (h RescheduleHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner.
func (h *RescheduleHistory) Scan(src interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*h = RescheduleHistory{}
		return nil
	}
	return json.Unmarshal(raw, h)
}

func jsonBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json column type %T", src)
	}
}

// Interview belongs to one application and one interviewer.
type Interview struct {
	ID                string                   `db:"id" json:"id"`
	ApplicationID     string                   `db:"application_id" json:"application_id"`
	InterviewerID     string                   `db:"interviewer_id" json:"interviewer_id"`
	Schedule          time.Time                `db:"schedule" json:"schedule"`
	Location          string                   `db:"location" json:"location"`
	Status            InterviewStatus          `db:"status" json:"status"`
	Scores            InterviewScores          `db:"interview_scores" json:"interview_scores"`
	TotalScore        *float64                 `db:"total_score" json:"total_score,omitempty"`
	Recommendation    *InterviewRecommendation `db:"recommendation" json:"recommendation,omitempty"`
	Remarks           *string                  `db:"remarks" json:"remarks,omitempty"`
	RescheduleHistory RescheduleHistory        `db:"reschedule_history" json:"reschedule_history"`
	CancelReason      *string                  `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedBy         string                   `db:"created_by" json:"created_by"`
	CompletedAt       *time.Time               `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time                `db:"updated_at" json:"updated_at"`
}

// InterviewFilter constrains interview listings.
type InterviewFilter struct {
	ApplicationID string
	InterviewerID string
	Status        []InterviewStatus
	From          *time.Time
	To            *time.Time
}
