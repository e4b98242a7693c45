package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

func scholarshipRequest() ScholarshipRequest {
	return ScholarshipRequest{
		Name:     "  Performing Arts Grant ",
		Type:     models.ScholarshipPerformingArtsFull,
		Deadline: time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC),
		Slots:    5,
		Amount:   decimal.NewFromInt(6000),
	}
}

func TestScholarshipCreateAppliesDefaults(t *testing.T) {
	repo := newMemScholarships()
	audit := &recordingAudit{}
	cache := &recordingInvalidator{}
	svc := NewScholarshipService(nil, repo, audit, cache, nil, nil)

	created, err := svc.Create(context.Background(), scholarshipRequest(), adminActor)
	require.NoError(t, err)
	assert.Equal(t, "Performing Arts Grant", created.Name)
	assert.Equal(t, models.ScholarshipStatusDraft, created.Status)
	assert.Equal(t, "cultural_affairs_fund", created.FundSource)
	assert.Contains(t, repo.items, created.ID)
	assert.Equal(t, []string{models.AuditActionScholarshipCreate}, audit.actions())
	assert.Len(t, cache.patterns, 1)
}

func TestScholarshipCreateValidation(t *testing.T) {
	svc := NewScholarshipService(nil, newMemScholarships(), nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, scholarshipRequest(), staffActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	bad := scholarshipRequest()
	bad.Type = "sports"
	_, err = svc.Create(ctx, bad, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	bad = scholarshipRequest()
	bad.Amount = decimal.NewFromInt(-1)
	_, err = svc.Create(ctx, bad, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	bad = scholarshipRequest()
	bad.Name = ""
	_, err = svc.Create(ctx, bad, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	bad = scholarshipRequest()
	bad.Status = "closed"
	_, err = svc.Create(ctx, bad, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestScholarshipUpdateKeepsType(t *testing.T) {
	existing := openScholarship(models.ScholarshipAcademicFull)
	repo := newMemScholarships(existing)
	svc := NewScholarshipService(nil, repo, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, "sch-1", scholarshipRequest(), adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	req := scholarshipRequest()
	req.Type = models.ScholarshipAcademicFull
	req.Status = models.ScholarshipStatusActive
	req.Slots = 12
	updated, err := svc.Update(ctx, "sch-1", req, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 12, updated.Slots)
	assert.Equal(t, "special_trust_fund", updated.FundSource)

	_, err = svc.Update(ctx, "missing", req, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestScholarshipSetStatus(t *testing.T) {
	repo := newMemScholarships(openScholarship(models.ScholarshipAcademicFull))
	audit := &recordingAudit{}
	svc := NewScholarshipService(nil, repo, audit, nil, nil, nil)
	ctx := context.Background()

	updated, err := svc.SetStatus(ctx, "sch-1", models.ScholarshipStatusInactive, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.ScholarshipStatusInactive, updated.Status)

	_, err = svc.SetStatus(ctx, "sch-1", models.ScholarshipStatusInactive, adminActor)
	require.NoError(t, err)
	assert.Len(t, audit.logs, 1)

	_, err = svc.SetStatus(ctx, "sch-1", "archived", adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestScholarshipVisibility(t *testing.T) {
	draft := openScholarship(models.ScholarshipAcademicPartial)
	draft.ID = "sch-draft"
	draft.Status = models.ScholarshipStatusDraft
	repo := newMemScholarships(openScholarship(models.ScholarshipAcademicFull), draft)
	svc := NewScholarshipService(nil, repo, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, "sch-draft", studentActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	got, err := svc.Get(ctx, "sch-draft", staffActor)
	require.NoError(t, err)
	assert.Equal(t, models.ScholarshipStatusDraft, got.Status)

	list, err := svc.List(ctx, models.ScholarshipFilter{}, studentActor)
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "sch-1", list.Items[0].ID)

	_, err = svc.List(ctx, models.ScholarshipFilter{Status: models.ScholarshipStatusDraft}, studentActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	all, err := svc.List(ctx, models.ScholarshipFilter{}, staffActor)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)

	_, err = svc.List(ctx, models.ScholarshipFilter{Type: "sports"}, staffActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
