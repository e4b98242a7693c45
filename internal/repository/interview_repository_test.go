package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
)

var interviewRowColumns = []string{"id", "application_id", "interviewer_id", "schedule", "location", "status", "interview_scores",
	"total_score", "recommendation", "remarks", "reschedule_history", "cancel_reason", "created_by", "completed_at", "created_at", "updated_at"}

func TestInterviewRepositoryFindConflictsUsesBufferWindow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	at := time.Date(2025, time.September, 10, 9, 0, 0, 0, time.UTC)
	existing := at.Add(20 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("AND schedule > $2 AND schedule < $3 ORDER BY schedule ASC")).
		WithArgs("coach-1", at.Add(-30*time.Minute), at.Add(30*time.Minute)).
		WillReturnRows(sqlmock.NewRows(interviewRowColumns).AddRow("int-1", "app-2", "coach-1", existing, "Room 101",
			string(models.InterviewScheduled), []byte(`{}`), nil, nil, nil, []byte(`[]`), nil, "staff-1", nil, at, at))

	conflicts, err := repo.FindConflicts(context.Background(), "coach-1", at, 30*time.Minute, "")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, existing, conflicts[0].Schedule)
	assert.Empty(t, conflicts[0].RescheduleHistory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInterviewRepositoryFindConflictsExcludesRescheduledInterview(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	at := time.Date(2025, time.September, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("AND schedule > $2 AND schedule < $3 AND id <> $4 ORDER BY schedule ASC")).
		WithArgs("coach-1", at.Add(-30*time.Minute), at.Add(30*time.Minute), "int-1").
		WillReturnRows(sqlmock.NewRows(interviewRowColumns))

	conflicts, err := repo.FindConflicts(context.Background(), "coach-1", at, 30*time.Minute, "int-1")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInterviewRepositoryScansJSONColumns(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	now := time.Now().UTC()
	history := `[{"old_schedule":"2025-09-10T09:00:00Z","new_schedule":"2025-09-12T09:00:00Z","reason":"conflict","by":"staff-1","at":"2025-09-05T09:00:00Z"}]`
	mock.ExpectQuery(regexp.QuoteMeta("FROM interviews WHERE id = $1")).
		WithArgs("int-1").
		WillReturnRows(sqlmock.NewRows(interviewRowColumns).AddRow("int-1", "app-1", "coach-1", now, "Room 101",
			string(models.InterviewCompleted), []byte(`{"communication":90,"poise":"85"}`), 87.5, "approved", nil,
			[]byte(history), nil, "staff-1", now, now, now))

	interview, err := repo.GetByID(context.Background(), "int-1")
	require.NoError(t, err)
	require.Len(t, interview.RescheduleHistory, 1)
	assert.Equal(t, "conflict", interview.RescheduleHistory[0].Reason)
	assert.Equal(t, "85", interview.Scores["poise"])
	require.NotNil(t, interview.Recommendation)
	assert.Equal(t, models.RecommendApproved, *interview.Recommendation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInterviewRepositoryLockInterviewer(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("interviewer:coach-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LockInterviewer(context.Background(), "coach-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInterviewRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	from := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND interviewer_id = $1 AND status = ANY($2) AND schedule >= $3 ORDER BY schedule ASC")).
		WithArgs("coach-1", sqlmock.AnyArg(), from).
		WillReturnRows(sqlmock.NewRows(interviewRowColumns))

	rows, err := repo.List(context.Background(), models.InterviewFilter{
		InterviewerID: "coach-1",
		Status:        []models.InterviewStatus{models.InterviewScheduled, models.InterviewRescheduled},
		From:          &from,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
