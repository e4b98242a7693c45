package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// NoShowPolicy decides what happens to an application when its interview is a no-show.
type NoShowPolicy string

const (
	NoShowReject NoShowPolicy = "reject"
	NoShowRevert NoShowPolicy = "revert"
	NoShowKeep   NoShowPolicy = "keep"
)

// ParseNoShowPolicy maps a config value to a policy, defaulting to reject.
func ParseNoShowPolicy(value string) NoShowPolicy {
	switch NoShowPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case NoShowRevert:
		return NoShowRevert
	case NoShowKeep:
		return NoShowKeep
	default:
		return NoShowReject
	}
}

type interviewStore interface {
	LockInterviewer(ctx context.Context, interviewerID string) error
	GetByID(ctx context.Context, id string) (*models.Interview, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Interview, error)
	GetActiveByApplication(ctx context.Context, applicationID string) (*models.Interview, error)
	FindConflicts(ctx context.Context, interviewerID string, at time.Time, buffer time.Duration, excludeID string) ([]models.Interview, error)
	Create(ctx context.Context, interview *models.Interview) error
	Update(ctx context.Context, interview *models.Interview) error
	List(ctx context.Context, filter models.InterviewFilter) ([]models.Interview, error)
}

type interviewLifecycle interface {
	Transition(ctx context.Context, req TransitionRequest) (*models.ApplicationDetail, error)
	SyncWithDocuments(ctx context.Context, applicationID string, actor *models.Actor) (*models.ApplicationDetail, error)
	RequireCompleteChecklist(ctx context.Context, detail *models.ApplicationDetail) error
}

type applicationDetailLocker interface {
	GetDetail(ctx context.Context, id string) (*models.ApplicationDetail, error)
	GetDetailForUpdate(ctx context.Context, id string) (*models.ApplicationDetail, error)
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// InterviewServiceConfig carries scheduling policy.
type InterviewServiceConfig struct {
	ConflictBuffer time.Duration
	NoShowPolicy   NoShowPolicy
}

// ScheduleInterviewRequest books an interview for a verified application.
type ScheduleInterviewRequest struct {
	ApplicationID string
	InterviewerID string
	Schedule      time.Time
	Location      string
}

// CompleteInterviewRequest records the interview outcome.
type CompleteInterviewRequest struct {
	InterviewID    string
	Scores         models.InterviewScores
	Recommendation models.InterviewRecommendation
	Remarks        string
}

// InterviewService runs the interview state machine and its application cascade.
type InterviewService struct {
	tx           txRunner
	interviews   interviewStore
	applications applicationDetailLocker
	lifecycle    interviewLifecycle
	users        userDirectory
	audit        auditLogger
	notifier     Notifier
	logger       *zap.Logger
	cfg          InterviewServiceConfig
	now          func() time.Time
}

// NewInterviewService constructs the service.
func NewInterviewService(
	tx txRunner,
	interviews interviewStore,
	applications applicationDetailLocker,
	lifecycle interviewLifecycle,
	users userDirectory,
	audit auditLogger,
	notifier Notifier,
	logger *zap.Logger,
	cfg InterviewServiceConfig,
) *InterviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tx == nil {
		tx = noTx{}
	}
	if cfg.ConflictBuffer <= 0 {
		cfg.ConflictBuffer = 30 * time.Minute
	}
	if cfg.NoShowPolicy == "" {
		cfg.NoShowPolicy = NoShowReject
	}
	return &InterviewService{
		tx:           tx,
		interviews:   interviews,
		applications: applications,
		lifecycle:    lifecycle,
		users:        users,
		audit:        audit,
		notifier:     notifier,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Schedule books an interview and moves the application to evaluation.
func (s *InterviewService) Schedule(ctx context.Context, req ScheduleInterviewRequest, actor *models.Actor) (*models.Interview, error) {
	if !canManageInterviews(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only OSAS staff may schedule interviews")
	}
	if strings.TrimSpace(req.ApplicationID) == "" || strings.TrimSpace(req.InterviewerID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application_id and interviewer_id are required")
	}
	now := s.now().UTC()
	if !req.Schedule.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "interview must be scheduled in the future")
	}
	if err := s.checkInterviewer(ctx, req.InterviewerID); err != nil {
		return nil, err
	}

	var result *models.Interview
	var detail *models.ApplicationDetail
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		synced, err := s.lifecycle.SyncWithDocuments(txCtx, req.ApplicationID, actor)
		if err != nil {
			return err
		}
		if synced.Status != models.ApplicationVerified {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("application is %s; interviews require a verified application", humanize(string(synced.Status))))
		}
		if err := s.lifecycle.RequireCompleteChecklist(txCtx, synced); err != nil {
			return err
		}
		if _, err := s.interviews.GetActiveByApplication(txCtx, synced.ID); err == nil {
			return appErrors.Clone(appErrors.ErrConflict, "application already has an active interview")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Internal(err, "failed to check active interview")
		}
		if err := s.lockAndCheckConflicts(txCtx, req.InterviewerID, req.Schedule, ""); err != nil {
			return err
		}

		interview := &models.Interview{
			ID:                uuid.NewString(),
			ApplicationID:     synced.ID,
			InterviewerID:     req.InterviewerID,
			Schedule:          req.Schedule.UTC(),
			Location:          strings.TrimSpace(req.Location),
			Status:            models.InterviewScheduled,
			Scores:            models.InterviewScores{},
			RescheduleHistory: models.RescheduleHistory{},
			CreatedBy:         actor.UserID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.interviews.Create(txCtx, interview); err != nil {
			return appErrors.Internal(err, "failed to create interview")
		}
		updated, err := s.lifecycle.Transition(txCtx, TransitionRequest{
			ApplicationID: synced.ID,
			To:            models.ApplicationUnderEvaluation,
			Actor:         actor,
			Reason:        "interview scheduled",
		})
		if err != nil {
			return err
		}
		recordAudit(txCtx, s.audit, s.logger, actor, models.AuditActionInterviewSchedule, "interview", interview.ID, nil,
			map[string]interface{}{"application_id": synced.ID, "interviewer_id": req.InterviewerID, "schedule": interview.Schedule})
		result = interview
		detail = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyParticipants(ctx, detail, result, "Interview scheduled",
		fmt.Sprintf("An interview for %s is scheduled on %s.", detail.ScholarshipName, formatSchedule(result)))
	return result, nil
}

// Reschedule moves an active interview to a new time.
func (s *InterviewService) Reschedule(ctx context.Context, id string, newSchedule time.Time, reason string, actor *models.Actor) (*models.Interview, error) {
	if !canManageInterviews(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only OSAS staff may reschedule interviews")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a reason is required to reschedule")
	}
	now := s.now().UTC()
	if !newSchedule.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "interview must be scheduled in the future")
	}

	var result *models.Interview
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		interview, err := s.lockInterview(txCtx, id)
		if err != nil {
			return err
		}
		if !interview.Status.Active() {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("interview is already %s", interview.Status))
		}
		if err := s.lockAndCheckConflicts(txCtx, interview.InterviewerID, newSchedule, interview.ID); err != nil {
			return err
		}
		old := interview.Schedule
		interview.RescheduleHistory = append(interview.RescheduleHistory, models.RescheduleEntry{
			OldSchedule: old,
			NewSchedule: newSchedule.UTC(),
			Reason:      strings.TrimSpace(reason),
			By:          actor.UserID,
			At:          now,
		})
		interview.Schedule = newSchedule.UTC()
		interview.Status = models.InterviewRescheduled
		interview.UpdatedAt = now
		if err := s.interviews.Update(txCtx, interview); err != nil {
			return appErrors.Internal(err, "failed to update interview")
		}
		recordAudit(txCtx, s.audit, s.logger, actor, models.AuditActionInterviewReschedule, "interview", interview.ID,
			map[string]interface{}{"schedule": old}, map[string]interface{}{"schedule": interview.Schedule, "reason": reason})
		result = interview
		return nil
	})
	if err != nil {
		return nil, err
	}
	if detail, err := s.applications.GetDetail(ctx, result.ApplicationID); err == nil {
		s.notifyParticipants(ctx, detail, result, "Interview rescheduled",
			fmt.Sprintf("Your interview for %s moved to %s.", detail.ScholarshipName, formatSchedule(result)))
	}
	return result, nil
}

// Complete records scores and a recommendation, then applies the recommendation to the application.
func (s *InterviewService) Complete(ctx context.Context, req CompleteInterviewRequest, actor *models.Actor) (*models.Interview, error) {
	switch req.Recommendation {
	case models.RecommendApproved, models.RecommendRejected, models.RecommendPending:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "recommendation must be approved, rejected or pending")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	var result *models.Interview
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		interview, err := s.lockInterview(txCtx, req.InterviewID)
		if err != nil {
			return err
		}
		if actor.UserID != interview.InterviewerID && !canManageInterviews(actor) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the assigned interviewer may complete this interview")
		}
		if !interview.Status.Active() {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("interview is already %s", interview.Status))
		}

		now := s.now().UTC()
		total := AverageScore(req.Scores)
		recommendation := req.Recommendation
		interview.Scores = req.Scores
		if interview.Scores == nil {
			interview.Scores = models.InterviewScores{}
		}
		interview.TotalScore = &total
		interview.Recommendation = &recommendation
		interview.Remarks = trimmedPtr(req.Remarks)
		interview.Status = models.InterviewCompleted
		interview.CompletedAt = &now
		interview.UpdatedAt = now
		if err := s.interviews.Update(txCtx, interview); err != nil {
			return appErrors.Internal(err, "failed to update interview")
		}

		var target models.ApplicationStatus
		switch recommendation {
		case models.RecommendApproved:
			target = models.ApplicationApproved
		case models.RecommendRejected:
			target = models.ApplicationRejected
		}
		if target != "" {
			if _, err := s.lifecycle.Transition(txCtx, TransitionRequest{
				ApplicationID: interview.ApplicationID,
				To:            target,
				Actor:         actor,
				Reason:        "interview recommendation: " + string(recommendation),
			}); err != nil {
				return err
			}
		}
		recordAudit(txCtx, s.audit, s.logger, actor, models.AuditActionInterviewOutcome, "interview", interview.ID, nil,
			map[string]interface{}{"status": interview.Status, "total_score": total, "recommendation": recommendation})
		result = interview
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel ends an active interview and returns the application to submitted.
func (s *InterviewService) Cancel(ctx context.Context, id, reason string, actor *models.Actor) (*models.Interview, error) {
	if !canManageInterviews(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only OSAS staff may cancel interviews")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a reason is required to cancel")
	}
	return s.finish(ctx, id, models.InterviewCancelled, reason, actor, func(detail *models.ApplicationDetail) models.ApplicationStatus {
		return models.ApplicationSubmitted
	})
}

// MarkNoShow ends an active interview the applicant missed and applies the no-show policy.
func (s *InterviewService) MarkNoShow(ctx context.Context, id string, actor *models.Actor) (*models.Interview, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return s.finish(ctx, id, models.InterviewNoShow, "applicant did not attend the interview", actor, func(detail *models.ApplicationDetail) models.ApplicationStatus {
		switch s.cfg.NoShowPolicy {
		case NoShowRevert:
			return models.ApplicationSubmitted
		case NoShowKeep:
			return ""
		default:
			return models.ApplicationRejected
		}
	})
}

// finish moves an active interview to a terminal status and cascades to the
// application while it is still under evaluation.
func (s *InterviewService) finish(ctx context.Context, id string, status models.InterviewStatus, reason string, actor *models.Actor, target func(*models.ApplicationDetail) models.ApplicationStatus) (*models.Interview, error) {
	var result *models.Interview
	var detail *models.ApplicationDetail
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		interview, err := s.lockInterview(txCtx, id)
		if err != nil {
			return err
		}
		if status == models.InterviewNoShow && actor.UserID != interview.InterviewerID && !canManageInterviews(actor) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the assigned interviewer may mark a no-show")
		}
		if !interview.Status.Active() {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("interview is already %s", interview.Status))
		}
		current, err := s.applications.GetDetailForUpdate(txCtx, interview.ApplicationID)
		if err != nil {
			return appErrors.Internal(err, "failed to load application")
		}

		now := s.now().UTC()
		interview.Status = status
		if status == models.InterviewCancelled {
			interview.CancelReason = trimmedPtr(reason)
		} else {
			interview.Remarks = trimmedPtr(reason)
		}
		interview.UpdatedAt = now
		if err := s.interviews.Update(txCtx, interview); err != nil {
			return appErrors.Internal(err, "failed to update interview")
		}

		detail = current
		if to := target(current); to != "" && current.Status == models.ApplicationUnderEvaluation {
			updated, err := s.lifecycle.Transition(txCtx, TransitionRequest{
				ApplicationID: current.ID,
				To:            to,
				Actor:         actor,
				Reason:        fmt.Sprintf("interview %s: %s", humanize(string(status)), reason),
			})
			if err != nil {
				return err
			}
			detail = updated
		}
		recordAudit(txCtx, s.audit, s.logger, actor, models.AuditActionInterviewOutcome, "interview", interview.ID, nil,
			map[string]interface{}{"status": status, "reason": reason})
		result = interview
		return nil
	})
	if err != nil {
		return nil, err
	}
	if status == models.InterviewCancelled {
		s.notifyParticipants(ctx, detail, result, "Interview cancelled",
			fmt.Sprintf("Your interview for %s was cancelled: %s", detail.ScholarshipName, reason))
	}
	return result, nil
}

// Get returns one interview.
func (s *InterviewService) Get(ctx context.Context, id string, actor *models.Actor) (*models.Interview, error) {
	interview, err := s.interviews.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "interview not found")
		}
		return nil, appErrors.Internal(err, "failed to load interview")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role.IsStaff() {
		return interview, nil
	}
	detail, err := s.applications.GetDetail(ctx, interview.ApplicationID)
	if err != nil || !canViewApplication(actor, detail) {
		return nil, appErrors.ErrForbidden
	}
	return interview, nil
}

// List returns interviews. Interviewers without a managing role only see their own.
func (s *InterviewService) List(ctx context.Context, filter models.InterviewFilter, actor *models.Actor) ([]models.Interview, error) {
	if actor == nil || !actor.Role.IsStaff() {
		return nil, appErrors.ErrForbidden
	}
	if !canManageInterviews(actor) {
		filter.InterviewerID = actor.UserID
	}
	rows, err := s.interviews.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list interviews")
	}
	if rows == nil {
		rows = []models.Interview{}
	}
	return rows, nil
}

func (s *InterviewService) lockInterview(ctx context.Context, id string) (*models.Interview, error) {
	interview, err := s.interviews.GetByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "interview not found")
		}
		return nil, appErrors.Internal(err, "failed to load interview")
	}
	return interview, nil
}

// lockAndCheckConflicts serialises the interviewer's calendar for the rest of the
// transaction and rejects times within the conflict buffer of another active interview.
func (s *InterviewService) lockAndCheckConflicts(ctx context.Context, interviewerID string, at time.Time, excludeID string) error {
	if err := s.interviews.LockInterviewer(ctx, interviewerID); err != nil {
		return appErrors.Internal(err, "failed to lock interviewer schedule")
	}
	conflicts, err := s.interviews.FindConflicts(ctx, interviewerID, at.UTC(), s.cfg.ConflictBuffer, excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check interviewer schedule")
	}
	for _, other := range conflicts {
		if absDuration(other.Schedule.Sub(at)) < s.cfg.ConflictBuffer {
			return appErrors.Clone(appErrors.ErrConflict,
				fmt.Sprintf("interviewer already has an interview at %s", other.Schedule.UTC().Format(time.RFC3339)))
		}
	}
	return nil
}

func (s *InterviewService) checkInterviewer(ctx context.Context, id string) error {
	if s.users == nil {
		return nil
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "interviewer not found")
		}
		return appErrors.Internal(err, "failed to load interviewer")
	}
	if !user.Active || !user.Role.IsStaff() {
		return appErrors.Clone(appErrors.ErrValidation, "interviewer must be an active staff member")
	}
	return nil
}

func (s *InterviewService) notifyParticipants(ctx context.Context, detail *models.ApplicationDetail, interview *models.Interview, title, message string) {
	if detail == nil || interview == nil {
		return
	}
	now := s.now().UTC()
	data := map[string]interface{}{"schedule": interview.Schedule, "location": interview.Location, "status": interview.Status}
	related := &models.RelatedEntity{Type: "interview", ID: interview.ID}
	for _, userID := range []string{detail.StudentUserID, interview.InterviewerID} {
		notifyAfterCommit(ctx, s.notifier, models.Notification{
			UserID:        userID,
			Title:         title,
			Message:       message,
			Type:          models.NotificationInterview,
			Data:          data,
			RelatedEntity: related,
			CreatedAt:     now,
		})
	}
}

// AverageScore is the mean of the numeric entries. Numeric strings count; other
// values are skipped. No numeric entries yields 0.
func AverageScore(scores models.InterviewScores) float64 {
	var sum float64
	var n int
	for _, raw := range scores {
		if v, ok := numericScore(raw); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func numericScore(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func canManageInterviews(actor *models.Actor) bool {
	return actor != nil && (actor.Role == models.RoleOSASStaff || actor.Role == models.RoleAdmin)
}

func formatSchedule(interview *models.Interview) string {
	return interview.Schedule.UTC().Format("Jan 2, 2006 15:04 MST")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
