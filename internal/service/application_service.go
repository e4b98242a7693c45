package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.ScholarshipApplication) error
	GetDetail(ctx context.Context, id string) (*models.ApplicationDetail, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	ExistsOpen(ctx context.Context, studentID, scholarshipID string) (bool, error)
	CountApproved(ctx context.Context, scholarshipID string) (int, error)
	ListHistory(ctx context.Context, applicationID string) ([]models.ApplicationStatusHistory, error)
}

type scholarshipLocker interface {
	GetByID(ctx context.Context, id string) (*models.Scholarship, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Scholarship, error)
}

type studentProfileFinder interface {
	GetProfileByID(ctx context.Context, id string) (*models.StudentProfile, error)
	GetProfileByUserID(ctx context.Context, userID string) (*models.StudentProfile, error)
}

type eligibilityEvaluator interface {
	Evaluate(ctx context.Context, profile *models.StudentProfile, scholarship *models.Scholarship) (*EligibilityResult, error)
}

type applicationLifecycle interface {
	Transition(ctx context.Context, req TransitionRequest) (*models.ApplicationDetail, error)
}

// ApplyRequest is a student's submission for a scholarship.
type ApplyRequest struct {
	ScholarshipID string
	SaveAsDraft   bool
}

// ApplicationSubmission is the outcome of an application attempt. Eligibility is
// populated even when the attempt is refused for failing requirements.
type ApplicationSubmission struct {
	Application *models.ApplicationDetail `json:"application,omitempty"`
	Eligibility *EligibilityResult        `json:"eligibility,omitempty"`
}

// ApplicationListResult is a page of applications.
type ApplicationListResult struct {
	Items []models.ApplicationDetail
	Total int
}

// ApplicationService handles intake, listing and staff-driven status changes.
type ApplicationService struct {
	tx           txRunner
	applications applicationStore
	scholarships scholarshipLocker
	students     studentProfileFinder
	eligibility  eligibilityEvaluator
	lifecycle    applicationLifecycle
	audit        auditLogger
	notifier     Notifier
	cache        cacheInvalidator
	logger       *zap.Logger
	now          func() time.Time
}

// ApplicationServiceOption configures optional collaborators.
type ApplicationServiceOption func(*ApplicationService)

// WithApplicationAudit sets the audit logger.
func WithApplicationAudit(a auditLogger) ApplicationServiceOption {
	return func(s *ApplicationService) { s.audit = a }
}

// WithApplicationNotifier sets the notification sink.
func WithApplicationNotifier(n Notifier) ApplicationServiceOption {
	return func(s *ApplicationService) { s.notifier = n }
}

// WithApplicationCache sets the cache whose report entries are dropped on intake.
func WithApplicationCache(c cacheInvalidator) ApplicationServiceOption {
	return func(s *ApplicationService) { s.cache = c }
}

// NewApplicationService constructs the service.
func NewApplicationService(
	tx txRunner,
	applications applicationStore,
	scholarships scholarshipLocker,
	students studentProfileFinder,
	eligibility eligibilityEvaluator,
	lifecycle applicationLifecycle,
	logger *zap.Logger,
	opts ...ApplicationServiceOption,
) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tx == nil {
		tx = noTx{}
	}
	s := &ApplicationService{
		tx:           tx,
		applications: applications,
		scholarships: scholarships,
		students:     students,
		eligibility:  eligibility,
		lifecycle:    lifecycle,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Apply creates a submitted application, or a draft when requested. Submitted
// applications must pass eligibility; drafts are checked when submitted later.
func (s *ApplicationService) Apply(ctx context.Context, req ApplyRequest, actor *models.Actor) (*ApplicationSubmission, error) {
	if actor == nil || actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may apply")
	}
	if strings.TrimSpace(req.ScholarshipID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scholarship_id is required")
	}
	profile, err := s.students.GetProfileByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Internal(err, "failed to load student profile")
	}

	result := &ApplicationSubmission{}
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		scholarship, err := s.lockScholarship(txCtx, req.ScholarshipID)
		if err != nil {
			return err
		}
		if err := s.checkIntake(txCtx, profile.ID, scholarship); err != nil {
			return err
		}

		status := models.ApplicationDraft
		if !req.SaveAsDraft {
			eligibility, err := s.eligibility.Evaluate(txCtx, profile, scholarship)
			if err != nil {
				return err
			}
			result.Eligibility = eligibility
			if !eligibility.Eligible {
				return notEligible(eligibility)
			}
			status = models.ApplicationSubmitted
		}

		now := s.now().UTC()
		app := models.ScholarshipApplication{
			ID:             uuid.NewString(),
			StudentID:      profile.ID,
			ScholarshipID:  scholarship.ID,
			Status:         status,
			CurrentStep:    status.Step(),
			AmountReceived: decimal.Zero,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if status == models.ApplicationSubmitted {
			app.SubmittedAt = &now
		}
		if err := s.applications.Create(txCtx, &app); err != nil {
			return appErrors.Internal(err, "failed to create application")
		}
		result.Application = &models.ApplicationDetail{
			ScholarshipApplication: app,
			ScholarshipName:        scholarship.Name,
			ScholarshipType:        scholarship.Type,
			FundSource:             scholarship.FundSource,
			StudentUserID:          profile.UserID,
		}

		recordAudit(txCtx, s.audit, s.logger, actor, models.AuditActionApplicationSubmit, "application", app.ID, nil,
			map[string]string{"scholarship_id": scholarship.ID, "status": string(status)})
		if status == models.ApplicationSubmitted {
			notifyAfterCommit(txCtx, s.notifier, models.Notification{
				UserID:        profile.UserID,
				Title:         "Application submitted",
				Message:       fmt.Sprintf("Your application for %s was received. Upload the required documents to continue.", scholarship.Name),
				Type:          models.NotificationApplication,
				Data:          map[string]interface{}{"scholarship_id": scholarship.ID},
				RelatedEntity: &models.RelatedEntity{Type: "application", ID: app.ID},
				CreatedAt:     now,
			})
		}
		invalidateReportsAfterCommit(txCtx, s.cache, s.logger)
		return nil
	})
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotEligible) {
			return result, err
		}
		return nil, err
	}
	s.logger.Info("application created",
		zap.String("application_id", result.Application.ID),
		zap.String("scholarship_id", req.ScholarshipID),
		zap.String("status", string(result.Application.Status)),
	)
	return result, nil
}

// SubmitDraft re-runs eligibility and moves a draft to submitted.
func (s *ApplicationService) SubmitDraft(ctx context.Context, applicationID string, actor *models.Actor) (*ApplicationSubmission, error) {
	detail, err := s.loadDetail(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !ownsApplication(actor, detail) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the applicant may submit this application")
	}
	if detail.Status != models.ApplicationDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("application is %s, not draft", detail.Status))
	}

	result := &ApplicationSubmission{}
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		scholarship, err := s.lockScholarship(txCtx, detail.ScholarshipID)
		if err != nil {
			return err
		}
		if err := checkScholarshipOpen(scholarship, s.now()); err != nil {
			return err
		}
		if err := s.checkSlots(txCtx, scholarship); err != nil {
			return err
		}
		profile, err := s.students.GetProfileByID(txCtx, detail.StudentID)
		if err != nil {
			return appErrors.Internal(err, "failed to load student profile")
		}
		eligibility, err := s.eligibility.Evaluate(txCtx, profile, scholarship)
		if err != nil {
			return err
		}
		result.Eligibility = eligibility
		if !eligibility.Eligible {
			return notEligible(eligibility)
		}
		updated, err := s.lifecycle.Transition(txCtx, TransitionRequest{
			ApplicationID: detail.ID,
			To:            models.ApplicationSubmitted,
			Actor:         actor,
			Reason:        "draft submitted",
		})
		if err != nil {
			return err
		}
		result.Application = updated
		return nil
	})
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotEligible) {
			return result, err
		}
		return nil, err
	}
	return result, nil
}

// Get returns an application visible to the actor.
func (s *ApplicationService) Get(ctx context.Context, id string, actor *models.Actor) (*models.ApplicationDetail, error) {
	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewApplication(actor, detail) {
		return nil, appErrors.ErrForbidden
	}
	return detail, nil
}

// List returns applications. Students only see their own.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter, actor *models.Actor) (*ApplicationListResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleStudent {
		profile, err := s.students.GetProfileByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &ApplicationListResult{Items: []models.ApplicationDetail{}}, nil
			}
			return nil, appErrors.Internal(err, "failed to load student profile")
		}
		filter.StudentID = profile.ID
	} else if !actor.Role.IsStaff() {
		return nil, appErrors.ErrForbidden
	}
	for _, status := range filter.Status {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}
	items, total, err := s.applications.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list applications")
	}
	if items == nil {
		items = []models.ApplicationDetail{}
	}
	return &ApplicationListResult{Items: items, Total: total}, nil
}

// History returns the status trail of an application.
func (s *ApplicationService) History(ctx context.Context, id string, actor *models.Actor) ([]models.ApplicationStatusHistory, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	rows, err := s.applications.ListHistory(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load history")
	}
	if rows == nil {
		rows = []models.ApplicationStatusHistory{}
	}
	return rows, nil
}

// Transition applies a staff decision to an application.
func (s *ApplicationService) Transition(ctx context.Context, id string, to models.ApplicationStatus, reason string, actor *models.Actor) (*models.ApplicationDetail, error) {
	if actor == nil || (actor.Role != models.RoleOSASStaff && actor.Role != models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only OSAS staff may change application status")
	}
	if to == models.ApplicationRejected && strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a reason is required when rejecting")
	}
	return s.lifecycle.Transition(ctx, TransitionRequest{ApplicationID: id, To: to, Actor: actor, Reason: reason})
}

func (s *ApplicationService) lockScholarship(ctx context.Context, id string) (*models.Scholarship, error) {
	scholarship, err := s.scholarships.GetByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scholarship not found")
		}
		return nil, appErrors.Internal(err, "failed to load scholarship")
	}
	return scholarship, nil
}

func (s *ApplicationService) checkIntake(ctx context.Context, studentID string, scholarship *models.Scholarship) error {
	if err := checkScholarshipOpen(scholarship, s.now()); err != nil {
		return err
	}
	exists, err := s.applications.ExistsOpen(ctx, studentID, scholarship.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to check existing applications")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "an application for this scholarship is already in progress")
	}
	return s.checkSlots(ctx, scholarship)
}

func (s *ApplicationService) checkSlots(ctx context.Context, scholarship *models.Scholarship) error {
	if scholarship.Slots <= 0 {
		return nil
	}
	approved, err := s.applications.CountApproved(ctx, scholarship.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to count approved applications")
	}
	if approved >= scholarship.Slots {
		return appErrors.Clone(appErrors.ErrConflict, "no slots remaining for this scholarship")
	}
	return nil
}

func (s *ApplicationService) loadDetail(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, err := s.applications.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	return detail, nil
}

func checkScholarshipOpen(scholarship *models.Scholarship, now time.Time) error {
	if scholarship.Status != models.ScholarshipStatusActive {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("scholarship is %s and not accepting applications", scholarship.Status))
	}
	if now.After(scholarship.Deadline) {
		return appErrors.Clone(appErrors.ErrValidation, "the application deadline has passed")
	}
	return nil
}

func notEligible(result *EligibilityResult) error {
	keys := make([]string, 0, len(result.RequirementsFailed))
	for _, failed := range result.RequirementsFailed {
		keys = append(keys, failed.Key)
	}
	return appErrors.Clone(appErrors.ErrNotEligible, "requirements not met: "+strings.Join(keys, ", "))
}
