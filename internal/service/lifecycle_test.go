package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type transitionCounter struct {
	seen []string
}

func (c *transitionCounter) RecordTransition(from, to string) {
	c.seen = append(c.seen, from+"->"+to)
}

func verifiedDoc(id, appID string, t models.DocumentType, status models.DocumentStatus) models.Document {
	role, _ := VerifierRoleFor(t)
	return models.Document{ID: id, ApplicationID: appID, Type: t, Status: status, VerifierRole: role}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.ApplicationStatus
		want     bool
	}{
		{models.ApplicationDraft, models.ApplicationSubmitted, true},
		{models.ApplicationSubmitted, models.ApplicationIncomplete, true},
		{models.ApplicationVerified, models.ApplicationUnderEvaluation, true},
		{models.ApplicationUnderEvaluation, models.ApplicationSubmitted, true},
		{models.ApplicationApproved, models.ApplicationEnd, true},
		{models.ApplicationApproved, models.ApplicationRejected, false},
		{models.ApplicationDraft, models.ApplicationApproved, false},
		{models.ApplicationEnd, models.ApplicationSubmitted, false},
		{models.ApplicationRejected, models.ApplicationRejected, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestLifecycleTransitionRecordsHistoryAndSideEffects(t *testing.T) {
	apps := newMemApplications(newDetail("app-1", models.ApplicationVerified, models.ScholarshipAcademicFull))
	notifier := &recordingNotifier{}
	audit := &recordingAudit{}
	metrics := &transitionCounter{}
	cache := &recordingInvalidator{}
	lc := NewLifecycle(nil, apps, newMemDocuments(), nil,
		WithLifecycleNotifier(notifier), WithLifecycleAudit(audit), WithLifecycleMetrics(metrics), WithLifecycleCache(cache))
	lc.now = fixedClock(time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC))

	detail, err := lc.Transition(context.Background(), TransitionRequest{
		ApplicationID: "app-1", To: models.ApplicationRejected, Actor: staffActor, Reason: "incomplete interview",
	})
	require.NoError(t, err)
	require.Equal(t, models.ApplicationRejected, detail.Status)
	require.Equal(t, 5, detail.CurrentStep)
	require.NotNil(t, detail.ReviewedBy)
	require.Equal(t, "staff-1", *detail.ReviewedBy)
	require.Equal(t, "incomplete interview", *detail.Remarks)

	require.Len(t, apps.history, 1)
	require.Equal(t, models.ApplicationVerified, apps.history[0].FromStatus)
	require.Equal(t, models.ApplicationRejected, apps.history[0].ToStatus)
	require.Equal(t, []string{"verified->rejected"}, metrics.seen)
	require.Equal(t, []string{models.AuditActionApplicationStatus}, audit.actions())
	require.Equal(t, []string{"user-1"}, notifier.recipients())
	require.Equal(t, []string{reportCachePrefix + "*"}, cache.patterns)
}

func TestLifecycleTransitionRejectsIllegalMoves(t *testing.T) {
	apps := newMemApplications(
		newDetail("app-final", models.ApplicationApproved, models.ScholarshipAcademicFull),
		newDetail("app-draft", models.ApplicationDraft, models.ScholarshipAcademicFull),
	)
	lc := NewLifecycle(nil, apps, newMemDocuments(), nil)

	_, err := lc.Transition(context.Background(), TransitionRequest{ApplicationID: "app-final", To: models.ApplicationRejected, Actor: staffActor})
	require.True(t, appErrors.Is(err, appErrors.ErrFinalized))

	_, err = lc.Transition(context.Background(), TransitionRequest{ApplicationID: "app-draft", To: models.ApplicationApproved, Actor: staffActor})
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))

	_, err = lc.Transition(context.Background(), TransitionRequest{ApplicationID: "app-draft", To: "bogus"})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = lc.Transition(context.Background(), TransitionRequest{ApplicationID: "missing", To: models.ApplicationSubmitted})
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.Empty(t, apps.history)
}

func TestLifecycleSameStatusIsNoop(t *testing.T) {
	apps := newMemApplications(newDetail("app-1", models.ApplicationSubmitted, models.ScholarshipAcademicFull))
	lc := NewLifecycle(nil, apps, newMemDocuments(), nil)

	detail, err := lc.Transition(context.Background(), TransitionRequest{ApplicationID: "app-1", To: models.ApplicationSubmitted})
	require.NoError(t, err)
	require.Equal(t, models.ApplicationSubmitted, detail.Status)
	require.Empty(t, apps.history)
}

func TestLifecycleSyncFollowsDocumentChecklist(t *testing.T) {
	apps := newMemApplications(newDetail("app-1", models.ApplicationSubmitted, models.ScholarshipAcademicFull))
	docs := newMemDocuments(
		verifiedDoc("d1", "app-1", models.DocumentCertificateOfRegistration, models.DocumentVerified),
		verifiedDoc("d2", "app-1", models.DocumentGradeReport, models.DocumentVerified),
	)
	lc := NewLifecycle(nil, apps, docs, nil)
	ctx := context.Background()

	detail, err := lc.SyncWithDocuments(ctx, "app-1", staffActor)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationIncomplete, detail.Status)

	require.NoError(t, docs.Create(ctx, &models.Document{ID: "d3", ApplicationID: "app-1", Type: models.DocumentGoodMoral, Status: models.DocumentPending}))
	detail, err = lc.SyncWithDocuments(ctx, "app-1", staffActor)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationUnderVerification, detail.Status)

	require.NoError(t, docs.UpdateVerification(ctx, &models.Document{ID: "d3", ApplicationID: "app-1", Type: models.DocumentGoodMoral, Status: models.DocumentVerified}))
	require.NoError(t, lc.HandleDocumentEvent(ctx, DocumentEvent{Kind: DocumentEventVerified, ApplicationID: "app-1", Actor: counselorActor}))
	require.Equal(t, models.ApplicationVerified, apps.status("app-1"))

	// Replaying the same event changes nothing.
	require.NoError(t, lc.HandleDocumentEvent(ctx, DocumentEvent{Kind: DocumentEventVerified, ApplicationID: "app-1", Actor: counselorActor}))
	require.Len(t, apps.history, 3)
}

func TestLifecycleSyncIgnoresApplicationsPastVerification(t *testing.T) {
	apps := newMemApplications(newDetail("app-1", models.ApplicationUnderEvaluation, models.ScholarshipAcademicFull))
	lc := NewLifecycle(nil, apps, newMemDocuments(), nil)

	detail, err := lc.SyncWithDocuments(context.Background(), "app-1", staffActor)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationUnderEvaluation, detail.Status)
	require.Empty(t, apps.history)
}

func TestLifecycleRequireCompleteChecklist(t *testing.T) {
	detail := newDetail("app-1", models.ApplicationVerified, models.ScholarshipAcademicFull)
	docs := newMemDocuments(
		verifiedDoc("d1", "app-1", models.DocumentCertificateOfRegistration, models.DocumentVerified),
		verifiedDoc("d2", "app-1", models.DocumentGradeReport, models.DocumentRejected),
		verifiedDoc("d3", "app-1", models.DocumentGoodMoral, models.DocumentVerified),
	)
	lc := NewLifecycle(nil, newMemApplications(detail), docs, nil)
	ctx := context.Background()

	err := lc.RequireCompleteChecklist(ctx, detail)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	docs.items["d2"].Status = models.DocumentVerified
	require.NoError(t, lc.RequireCompleteChecklist(ctx, detail))
}

func TestEventBusStopsAtFirstError(t *testing.T) {
	bus := NewEventBus()
	var calls []string
	bus.SubscribeDocuments(func(context.Context, DocumentEvent) error {
		calls = append(calls, "first")
		return appErrors.ErrConflict
	})
	bus.SubscribeDocuments(func(context.Context, DocumentEvent) error {
		calls = append(calls, "second")
		return nil
	})
	bus.SubscribeDocuments(nil)

	err := bus.PublishDocument(context.Background(), DocumentEvent{ApplicationID: "app-1"})
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
	require.Equal(t, []string{"first"}, calls)
}
