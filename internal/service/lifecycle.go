package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

var applicationTransitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.ApplicationDraft:             {models.ApplicationSubmitted},
	models.ApplicationSubmitted:         {models.ApplicationUnderVerification, models.ApplicationIncomplete, models.ApplicationVerified, models.ApplicationRejected},
	models.ApplicationUnderVerification: {models.ApplicationIncomplete, models.ApplicationVerified, models.ApplicationRejected},
	models.ApplicationIncomplete:        {models.ApplicationUnderVerification, models.ApplicationVerified, models.ApplicationRejected},
	models.ApplicationVerified:          {models.ApplicationUnderEvaluation, models.ApplicationApproved, models.ApplicationRejected},
	models.ApplicationUnderEvaluation:   {models.ApplicationApproved, models.ApplicationRejected, models.ApplicationSubmitted},
	models.ApplicationApproved:          {models.ApplicationEnd},
	models.ApplicationRejected:          {models.ApplicationEnd},
}

// CanTransition reports whether an application may move from one status to another.
// Staying in the same status is always allowed and treated as a no-op.
func CanTransition(from, to models.ApplicationStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range applicationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the statuses reachable from the given status.
func AllowedTransitions(from models.ApplicationStatus) []models.ApplicationStatus {
	next := applicationTransitions[from]
	out := make([]models.ApplicationStatus, len(next))
	copy(out, next)
	return out
}

// documentSyncStatuses are the statuses in which document progress drives the lifecycle.
var documentSyncStatuses = map[models.ApplicationStatus]bool{
	models.ApplicationSubmitted:         true,
	models.ApplicationUnderVerification: true,
	models.ApplicationIncomplete:        true,
}

type lifecycleApplicationStore interface {
	GetDetailForUpdate(ctx context.Context, id string) (*models.ApplicationDetail, error)
	UpdateStatus(ctx context.Context, params repository.ApplicationStatusUpdate) error
	InsertHistory(ctx context.Context, entry *models.ApplicationStatusHistory) error
}

type applicationDocumentLister interface {
	ListByApplication(ctx context.Context, applicationID string) ([]models.Document, error)
}

type transitionRecorder interface {
	RecordTransition(from, to string)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// Lifecycle owns every application status change.
type Lifecycle struct {
	tx           txRunner
	applications lifecycleApplicationStore
	documents    applicationDocumentLister
	notifier     Notifier
	audit        auditLogger
	metrics      transitionRecorder
	cache        cacheInvalidator
	logger       *zap.Logger
	now          func() time.Time
}

// LifecycleOption configures optional collaborators.
type LifecycleOption func(*Lifecycle)

// WithLifecycleNotifier sets the notification sink.
func WithLifecycleNotifier(n Notifier) LifecycleOption {
	return func(l *Lifecycle) { l.notifier = n }
}

// WithLifecycleAudit sets the audit logger.
func WithLifecycleAudit(a auditLogger) LifecycleOption {
	return func(l *Lifecycle) { l.audit = a }
}

// WithLifecycleMetrics sets the transition counter.
func WithLifecycleMetrics(m transitionRecorder) LifecycleOption {
	return func(l *Lifecycle) { l.metrics = m }
}

// WithLifecycleCache sets the cache whose report entries are dropped on change.
func WithLifecycleCache(c cacheInvalidator) LifecycleOption {
	return func(l *Lifecycle) { l.cache = c }
}

// NewLifecycle constructs the lifecycle service.
func NewLifecycle(tx txRunner, applications lifecycleApplicationStore, documents applicationDocumentLister, logger *zap.Logger, opts ...LifecycleOption) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tx == nil {
		tx = noTx{}
	}
	l := &Lifecycle{
		tx:           tx,
		applications: applications,
		documents:    documents,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// TransitionRequest asks for an explicit status change.
type TransitionRequest struct {
	ApplicationID string
	To            models.ApplicationStatus
	Actor         *models.Actor
	Reason        string
}

// Transition locks the application and applies a legal status change.
func (l *Lifecycle) Transition(ctx context.Context, req TransitionRequest) (*models.ApplicationDetail, error) {
	if !req.To.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.To))
	}
	var detail *models.ApplicationDetail
	err := l.tx.WithinTx(ctx, func(txCtx context.Context) error {
		current, err := l.lockApplication(txCtx, req.ApplicationID)
		if err != nil {
			return err
		}
		if err := l.apply(txCtx, current, req.To, req.Actor, req.Reason); err != nil {
			return err
		}
		detail = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// SyncWithDocuments moves an application to the status its document checklist recommends.
// Applications outside the verification phase are returned unchanged.
func (l *Lifecycle) SyncWithDocuments(ctx context.Context, applicationID string, actor *models.Actor) (*models.ApplicationDetail, error) {
	var detail *models.ApplicationDetail
	err := l.tx.WithinTx(ctx, func(txCtx context.Context) error {
		current, err := l.lockApplication(txCtx, applicationID)
		if err != nil {
			return err
		}
		detail = current
		if !documentSyncStatuses[current.Status] {
			return nil
		}
		docs, err := l.documents.ListByApplication(txCtx, applicationID)
		if err != nil {
			return appErrors.Internal(err, "failed to load documents")
		}
		completeness := ComputeCompleteness(current.ScholarshipType, docs)
		if completeness.RecommendedStatus == current.Status || !CanTransition(current.Status, completeness.RecommendedStatus) {
			return nil
		}
		return l.apply(txCtx, current, completeness.RecommendedStatus, actor, "document checklist updated")
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// RequireCompleteChecklist fails unless every required document of the
// application is uploaded and verified.
func (l *Lifecycle) RequireCompleteChecklist(ctx context.Context, detail *models.ApplicationDetail) error {
	docs, err := l.documents.ListByApplication(ctx, detail.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to load documents")
	}
	completeness := ComputeCompleteness(detail.ScholarshipType, docs)
	if completeness.Complete {
		return nil
	}
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("document checklist is not complete: %d of %d verified",
		completeness.VerifiedCount, completeness.RequiredCount))
}

// HandleDocumentEvent subscribes the lifecycle to document changes.
func (l *Lifecycle) HandleDocumentEvent(ctx context.Context, event DocumentEvent) error {
	_, err := l.SyncWithDocuments(ctx, event.ApplicationID, event.Actor)
	return err
}

func (l *Lifecycle) lockApplication(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, err := l.applications.GetDetailForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	return detail, nil
}

// apply changes the status of an application already locked by the caller's transaction.
// detail is updated in place.
func (l *Lifecycle) apply(ctx context.Context, detail *models.ApplicationDetail, to models.ApplicationStatus, actor *models.Actor, reason string) error {
	from := detail.Status
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		if from.Finalized() {
			return appErrors.Clone(appErrors.ErrFinalized, fmt.Sprintf("application is already %s", from))
		}
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move application from %s to %s", from, to))
	}

	now := l.now().UTC()
	update := repository.ApplicationStatusUpdate{
		ID:          detail.ID,
		Status:      to,
		CurrentStep: to.Step(),
		Remarks:     detail.Remarks,
		ReviewedBy:  detail.ReviewedBy,
		ReviewedAt:  detail.ReviewedAt,
		SubmittedAt: detail.SubmittedAt,
		UpdatedAt:   now,
	}
	if to == models.ApplicationSubmitted && update.SubmittedAt == nil {
		update.SubmittedAt = &now
	}
	if (to == models.ApplicationApproved || to == models.ApplicationRejected) && actor != nil {
		reviewer := actor.UserID
		update.ReviewedBy = &reviewer
		update.ReviewedAt = &now
	}
	if note := trimmedPtr(reason); note != nil && to == models.ApplicationRejected {
		update.Remarks = note
	}
	if err := l.applications.UpdateStatus(ctx, update); err != nil {
		return appErrors.Internal(err, "failed to update application status")
	}

	history := &models.ApplicationStatusHistory{
		ID:            uuid.NewString(),
		ApplicationID: detail.ID,
		FromStatus:    from,
		ToStatus:      to,
		Reason:        trimmedPtr(reason),
		CreatedAt:     now,
	}
	if actor != nil && actor.UserID != "" {
		by := actor.UserID
		history.ChangedBy = &by
	}
	if err := l.applications.InsertHistory(ctx, history); err != nil {
		return appErrors.Internal(err, "failed to record status history")
	}

	detail.Status = to
	detail.CurrentStep = update.CurrentStep
	detail.Remarks = update.Remarks
	detail.ReviewedBy = update.ReviewedBy
	detail.ReviewedAt = update.ReviewedAt
	detail.SubmittedAt = update.SubmittedAt
	detail.UpdatedAt = now

	l.logger.Info("application status changed",
		zap.String("application_id", detail.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	if l.metrics != nil {
		l.metrics.RecordTransition(string(from), string(to))
	}
	recordAudit(ctx, l.audit, l.logger, actor, models.AuditActionApplicationStatus, "application", detail.ID,
		map[string]string{"status": string(from)}, map[string]string{"status": string(to), "reason": reason})
	notifyAfterCommit(ctx, l.notifier, models.Notification{
		UserID:  detail.StudentUserID,
		Title:   "Application status updated",
		Message: fmt.Sprintf("Your application for %s is now %s.", detail.ScholarshipName, humanize(string(to))),
		Type:    models.NotificationApplication,
		Data: map[string]interface{}{
			"from_status": from,
			"to_status":   to,
		},
		RelatedEntity: &models.RelatedEntity{Type: "application", ID: detail.ID},
		CreatedAt:     now,
	})
	if l.cache != nil {
		invalidateReportsAfterCommit(ctx, l.cache, l.logger)
	}
	return nil
}
