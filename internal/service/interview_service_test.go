package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

var interviewNow = time.Date(2025, time.September, 1, 8, 0, 0, 0, time.UTC)

type memInterviews struct {
	items  map[string]*models.Interview
	locked []string
}

func newMemInterviews(items ...models.Interview) *memInterviews {
	m := &memInterviews{items: map[string]*models.Interview{}}
	for i := range items {
		iv := items[i]
		m.items[iv.ID] = &iv
	}
	return m
}

func (m *memInterviews) LockInterviewer(_ context.Context, id string) error {
	m.locked = append(m.locked, id)
	return nil
}

func (m *memInterviews) GetByID(_ context.Context, id string) (*models.Interview, error) {
	iv, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *iv
	return &cp, nil
}

func (m *memInterviews) GetByIDForUpdate(ctx context.Context, id string) (*models.Interview, error) {
	return m.GetByID(ctx, id)
}

func (m *memInterviews) GetActiveByApplication(_ context.Context, applicationID string) (*models.Interview, error) {
	for _, iv := range m.items {
		if iv.ApplicationID == applicationID && iv.Status.Active() {
			cp := *iv
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memInterviews) FindConflicts(_ context.Context, interviewerID string, at time.Time, buffer time.Duration, excludeID string) ([]models.Interview, error) {
	var out []models.Interview
	for _, iv := range m.items {
		if iv.ID == excludeID || iv.InterviewerID != interviewerID || !iv.Status.Active() {
			continue
		}
		if iv.Schedule.After(at.Add(-buffer)) && iv.Schedule.Before(at.Add(buffer)) {
			out = append(out, *iv)
		}
	}
	return out, nil
}

func (m *memInterviews) Create(_ context.Context, iv *models.Interview) error {
	cp := *iv
	m.items[iv.ID] = &cp
	return nil
}

func (m *memInterviews) Update(ctx context.Context, iv *models.Interview) error {
	return m.Create(ctx, iv)
}

func (m *memInterviews) List(_ context.Context, f models.InterviewFilter) ([]models.Interview, error) {
	var out []models.Interview
	for _, iv := range m.items {
		if f.InterviewerID != "" && iv.InterviewerID != f.InterviewerID {
			continue
		}
		out = append(out, *iv)
	}
	return out, nil
}

type memUsers map[string]models.User

func (m memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

type interviewFixture struct {
	svc        *InterviewService
	apps       *memApplications
	interviews *memInterviews
	docs       *memDocuments
	notifier   *recordingNotifier
}

func newInterviewFixture(policy NoShowPolicy, app *models.ApplicationDetail, interviews ...models.Interview) *interviewFixture {
	apps := newMemApplications(app)
	docs := newMemDocuments(completeChecklist(app)...)
	lifecycle := NewLifecycle(nil, apps, docs, nil)
	lifecycle.now = fixedClock(interviewNow)
	users := memUsers{
		"coach-1":   {ID: "coach-1", Role: models.RoleCoachAdviser, Active: true},
		"retired-1": {ID: "retired-1", Role: models.RoleCoachAdviser, Active: false},
		"user-1":    {ID: "user-1", Role: models.RoleStudent, Active: true},
	}
	f := &interviewFixture{apps: apps, interviews: newMemInterviews(interviews...), docs: docs, notifier: &recordingNotifier{}}
	f.svc = NewInterviewService(nil, f.interviews, apps, lifecycle, users, &recordingAudit{}, f.notifier, nil,
		InterviewServiceConfig{NoShowPolicy: policy})
	f.svc.now = fixedClock(interviewNow)
	return f
}

func completeChecklist(app *models.ApplicationDetail) []models.Document {
	var docs []models.Document
	for i, req := range RequiredDocuments(app.ScholarshipType) {
		docs = append(docs, verifiedDoc(fmt.Sprintf("doc-%d", i+1), app.ID, req.Type, models.DocumentVerified))
	}
	return docs
}

func activeInterview(id string, at time.Time) models.Interview {
	return models.Interview{
		ID:            id,
		ApplicationID: "app-1",
		InterviewerID: "coach-1",
		Schedule:      at,
		Status:        models.InterviewScheduled,
		Scores:        models.InterviewScores{},
	}
}

func TestAverageScore(t *testing.T) {
	assert.Equal(t, 0.0, AverageScore(nil))
	assert.InDelta(t, 88.0, AverageScore(models.InterviewScores{"communication": 90, "leadership": "86", "notes": "strong"}), 1e-9)
	assert.InDelta(t, 80.0, AverageScore(models.InterviewScores{"a": json.Number("80"), "b": math.NaN()}), 1e-9)
	assert.Equal(t, 0.0, AverageScore(models.InterviewScores{"remark": "n/a"}))
}

func TestParseNoShowPolicy(t *testing.T) {
	assert.Equal(t, NoShowRevert, ParseNoShowPolicy(" Revert "))
	assert.Equal(t, NoShowKeep, ParseNoShowPolicy("keep"))
	assert.Equal(t, NoShowReject, ParseNoShowPolicy(""))
	assert.Equal(t, NoShowReject, ParseNoShowPolicy("whatever"))
}

func TestScheduleInterviewMovesApplicationToEvaluation(t *testing.T) {
	f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationVerified, models.ScholarshipAcademicFull))
	at := interviewNow.Add(48 * time.Hour)

	interview, err := f.svc.Schedule(context.Background(), ScheduleInterviewRequest{
		ApplicationID: "app-1", InterviewerID: "coach-1", Schedule: at, Location: " Room 204 ",
	}, staffActor)
	require.NoError(t, err)
	assert.Equal(t, models.InterviewScheduled, interview.Status)
	assert.Equal(t, "Room 204", interview.Location)
	assert.Equal(t, models.ApplicationUnderEvaluation, f.apps.status("app-1"))
	assert.Equal(t, []string{"coach-1"}, f.interviews.locked)
	assert.ElementsMatch(t, []string{"user-1", "coach-1"}, f.notifier.recipients())

	_, err = f.svc.Schedule(context.Background(), ScheduleInterviewRequest{
		ApplicationID: "app-1", InterviewerID: "coach-1", Schedule: at.Add(24 * time.Hour),
	}, staffActor)
	require.Error(t, err)
}

func TestScheduleInterviewGuards(t *testing.T) {
	ctx := context.Background()
	at := interviewNow.Add(24 * time.Hour)

	t.Run("application not verified", func(t *testing.T) {
		f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationSubmitted, models.ScholarshipAcademicFull))
		f.docs.items = map[string]*models.Document{}
		_, err := f.svc.Schedule(ctx, ScheduleInterviewRequest{ApplicationID: "app-1", InterviewerID: "coach-1", Schedule: at}, staffActor)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})

	t.Run("verified application with unverified checklist", func(t *testing.T) {
		f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationVerified, models.ScholarshipAcademicFull))
		f.docs.items["doc-2"].Status = models.DocumentRejected
		_, err := f.svc.Schedule(ctx, ScheduleInterviewRequest{ApplicationID: "app-1", InterviewerID: "coach-1", Schedule: at}, staffActor)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
		assert.Equal(t, models.ApplicationVerified, f.apps.status("app-1"))
		assert.Empty(t, f.interviews.items)
	})

	t.Run("interviewer busy within buffer", func(t *testing.T) {
		other := activeInterview("iv-other", at.Add(20*time.Minute))
		other.ApplicationID = "app-9"
		f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationVerified, models.ScholarshipAcademicFull), other)
		_, err := f.svc.Schedule(ctx, ScheduleInterviewRequest{ApplicationID: "app-1", InterviewerID: "coach-1", Schedule: at}, staffActor)
		assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
		assert.Equal(t, models.ApplicationVerified, f.apps.status("app-1"))
	})

	t.Run("past schedule", func(t *testing.T) {
		f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationVerified, models.ScholarshipAcademicFull))
		_, err := f.svc.Schedule(ctx, ScheduleInterviewRequest{ApplicationID: "app-1", InterviewerID: "coach-1", Schedule: interviewNow}, staffActor)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})

	t.Run("inactive or student interviewer", func(t *testing.T) {
		f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationVerified, models.ScholarshipAcademicFull))
		_, err := f.svc.Schedule(ctx, ScheduleInterviewRequest{ApplicationID: "app-1", InterviewerID: "retired-1", Schedule: at}, staffActor)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
		_, err = f.svc.Schedule(ctx, ScheduleInterviewRequest{ApplicationID: "app-1", InterviewerID: "user-1", Schedule: at}, staffActor)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})

	t.Run("coach cannot schedule", func(t *testing.T) {
		f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationVerified, models.ScholarshipAcademicFull))
		_, err := f.svc.Schedule(ctx, ScheduleInterviewRequest{ApplicationID: "app-1", InterviewerID: "coach-1", Schedule: at}, coachActor)
		assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	})
}

func TestRescheduleAppendsHistory(t *testing.T) {
	first := interviewNow.Add(24 * time.Hour)
	f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationUnderEvaluation, models.ScholarshipAcademicFull),
		activeInterview("iv-1", first))
	moved := first.Add(2 * time.Hour)

	_, err := f.svc.Reschedule(context.Background(), "iv-1", moved, "", staffActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	interview, err := f.svc.Reschedule(context.Background(), "iv-1", moved, "panel unavailable", staffActor)
	require.NoError(t, err)
	assert.Equal(t, models.InterviewRescheduled, interview.Status)
	assert.True(t, interview.Schedule.Equal(moved))
	require.Len(t, interview.RescheduleHistory, 1)
	assert.True(t, interview.RescheduleHistory[0].OldSchedule.Equal(first))
	assert.Equal(t, "panel unavailable", interview.RescheduleHistory[0].Reason)
	assert.Equal(t, "staff-1", interview.RescheduleHistory[0].By)
	assert.Len(t, f.notifier.sent, 2)
}

func TestCompleteInterviewAppliesRecommendation(t *testing.T) {
	f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationUnderEvaluation, models.ScholarshipAcademicFull),
		activeInterview("iv-1", interviewNow.Add(-time.Hour)))

	_, err := f.svc.Complete(context.Background(), CompleteInterviewRequest{InterviewID: "iv-1", Recommendation: models.RecommendApproved}, counselorActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	interview, err := f.svc.Complete(context.Background(), CompleteInterviewRequest{
		InterviewID:    "iv-1",
		Scores:         models.InterviewScores{"communication": 90, "leadership": 80},
		Recommendation: models.RecommendApproved,
		Remarks:        "excellent",
	}, coachActor)
	require.NoError(t, err)
	assert.Equal(t, models.InterviewCompleted, interview.Status)
	require.NotNil(t, interview.TotalScore)
	assert.InDelta(t, 85.0, *interview.TotalScore, 1e-9)
	assert.Equal(t, models.ApplicationApproved, f.apps.status("app-1"))

	_, err = f.svc.Complete(context.Background(), CompleteInterviewRequest{InterviewID: "iv-1", Recommendation: models.RecommendApproved}, coachActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestCompleteInterviewPendingLeavesApplication(t *testing.T) {
	f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationUnderEvaluation, models.ScholarshipAcademicFull),
		activeInterview("iv-1", interviewNow.Add(-time.Hour)))

	_, err := f.svc.Complete(context.Background(), CompleteInterviewRequest{InterviewID: "iv-1", Recommendation: "maybe"}, coachActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Complete(context.Background(), CompleteInterviewRequest{InterviewID: "iv-1", Recommendation: models.RecommendPending}, coachActor)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationUnderEvaluation, f.apps.status("app-1"))
}

func TestCancelInterviewReturnsApplicationToSubmitted(t *testing.T) {
	f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationUnderEvaluation, models.ScholarshipAcademicFull),
		activeInterview("iv-1", interviewNow.Add(time.Hour)))

	interview, err := f.svc.Cancel(context.Background(), "iv-1", "interviewer sick", staffActor)
	require.NoError(t, err)
	assert.Equal(t, models.InterviewCancelled, interview.Status)
	require.NotNil(t, interview.CancelReason)
	assert.Equal(t, models.ApplicationSubmitted, f.apps.status("app-1"))
	assert.Len(t, f.notifier.sent, 2)
}

func TestMarkNoShowFollowsPolicy(t *testing.T) {
	cases := []struct {
		policy NoShowPolicy
		want   models.ApplicationStatus
	}{
		{NoShowReject, models.ApplicationRejected},
		{NoShowRevert, models.ApplicationSubmitted},
		{NoShowKeep, models.ApplicationUnderEvaluation},
	}
	for _, tc := range cases {
		t.Run(string(tc.policy), func(t *testing.T) {
			f := newInterviewFixture(tc.policy, newDetail("app-1", models.ApplicationUnderEvaluation, models.ScholarshipAcademicFull),
				activeInterview("iv-1", interviewNow.Add(-time.Hour)))
			interview, err := f.svc.MarkNoShow(context.Background(), "iv-1", coachActor)
			require.NoError(t, err)
			assert.Equal(t, models.InterviewNoShow, interview.Status)
			assert.Equal(t, tc.want, f.apps.status("app-1"))
		})
	}
}

func TestInterviewListScopesInterviewers(t *testing.T) {
	own := activeInterview("iv-1", interviewNow.Add(time.Hour))
	other := activeInterview("iv-2", interviewNow.Add(3*time.Hour))
	other.InterviewerID = "counselor-1"
	f := newInterviewFixture(NoShowReject, newDetail("app-1", models.ApplicationUnderEvaluation, models.ScholarshipAcademicFull), own, other)
	ctx := context.Background()

	mine, err := f.svc.List(ctx, models.InterviewFilter{}, coachActor)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "iv-1", mine[0].ID)

	all, err := f.svc.List(ctx, models.InterviewFilter{}, staffActor)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.List(ctx, models.InterviewFilter{}, studentActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	got, err := f.svc.Get(ctx, "iv-1", studentActor)
	require.NoError(t, err)
	assert.Equal(t, "iv-1", got.ID)

	_, err = f.svc.Get(ctx, "iv-1", otherStudent)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
