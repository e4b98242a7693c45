package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

var disburseNow = time.Date(2025, time.October, 15, 10, 0, 0, 0, time.UTC)

type memStipends struct {
	funds    map[models.FundKey]*models.FundTracking
	stipends []models.ScholarshipStipend
}

func newMemStipends() *memStipends {
	return &memStipends{funds: map[models.FundKey]*models.FundTracking{}}
}

func (m *memStipends) GetFundForUpdate(_ context.Context, key models.FundKey) (*models.FundTracking, error) {
	fund, ok := m.funds[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *fund
	return &cp, nil
}

func (m *memStipends) AllocateFund(_ context.Context, key models.FundKey, amount decimal.Decimal, at time.Time) (*models.FundTracking, error) {
	fund, ok := m.funds[key]
	if !ok {
		fund = &models.FundTracking{ID: "fund-" + key.FundSource, FundSource: key.FundSource, AcademicYear: key.AcademicYear, Semester: key.Semester}
		m.funds[key] = fund
	}
	fund.AllocatedBudget = fund.AllocatedBudget.Add(amount)
	fund.RemainingBudget = fund.RemainingBudget.Add(amount)
	fund.UpdatedAt = at
	cp := *fund
	return &cp, nil
}

func (m *memStipends) DeductFund(_ context.Context, fundID string, amount decimal.Decimal, at time.Time) error {
	for _, fund := range m.funds {
		if fund.ID == fundID {
			fund.RemainingBudget = fund.RemainingBudget.Sub(amount)
			fund.UpdatedAt = at
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memStipends) ListFunds(context.Context) ([]models.FundTracking, error) {
	out := make([]models.FundTracking, 0, len(m.funds))
	for _, f := range m.funds {
		out = append(out, *f)
	}
	return out, nil
}

func (m *memStipends) ExistsForPeriod(_ context.Context, applicationID string, month int, academicYear string, semester models.Semester) (bool, error) {
	for _, s := range m.stipends {
		if s.ApplicationID == applicationID && s.Month == month && s.AcademicYear == academicYear && s.Semester == semester {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStipends) Create(_ context.Context, stipend *models.ScholarshipStipend) error {
	m.stipends = append(m.stipends, *stipend)
	return nil
}

func (m *memStipends) ListByApplication(_ context.Context, applicationID string) ([]models.ScholarshipStipend, error) {
	var out []models.ScholarshipStipend
	for _, s := range m.stipends {
		if s.ApplicationID == applicationID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStipends) remaining(source string) decimal.Decimal {
	return m.funds[models.FundKey{FundSource: source, AcademicYear: "2025-2026", Semester: models.SemesterFirst}].RemainingBudget
}

type continuingStub struct {
	eligible bool
}

func (c continuingStub) ContinuingEligibility(_ context.Context, _ *models.StudentProfile, s *models.Scholarship) (*EligibilityResult, error) {
	r := newEligibilityResult(s.Type)
	r.check(c.eligible, ReqContinuingGWAMaintained, "GWA maintained for the scholarship", "")
	return r.finalize(), nil
}

type releaseCounter struct {
	total decimal.Decimal
	count int
}

func (c *releaseCounter) RecordStipendRelease(_ string, amount decimal.Decimal) {
	c.total = c.total.Add(amount)
	c.count++
}

type stipendFixture struct {
	svc      *StipendService
	apps     *memApplications
	stipends *memStipends
	notifier *recordingNotifier
	metrics  *releaseCounter
	cache    *recordingInvalidator
}

func newStipendFixture(eligible bool, details ...*models.ApplicationDetail) *stipendFixture {
	apps := newMemApplications(details...)
	f := &stipendFixture{
		apps:     apps,
		stipends: newMemStipends(),
		notifier: &recordingNotifier{},
		metrics:  &releaseCounter{},
		cache:    &recordingInvalidator{},
	}
	profiles := newMemProfiles(enrolledProfile(floatPtr(1.30), 18))
	scholarships := newMemScholarships(openScholarship(models.ScholarshipAcademicFull))
	f.svc = NewStipendService(nil, f.stipends, apps, profiles, scholarships, continuingStub{eligible: eligible}, nil,
		WithStipendAudit(&recordingAudit{}), WithStipendNotifier(f.notifier), WithStipendMetrics(f.metrics),
		WithStipendCache(f.cache), WithHourlyRate(decimal.NewFromInt(50)))
	f.svc.now = fixedClock(disburseNow)
	return f
}

func firstSemester(month int) StipendPeriod {
	return StipendPeriod{Month: month, AcademicYear: "2025-2026", Semester: models.SemesterFirst}
}

func (f *stipendFixture) fund(t *testing.T, source string, amount int64) {
	t.Helper()
	_, err := f.svc.AllocateFund(context.Background(), AllocateFundRequest{
		FundSource: source, AcademicYear: "2025-2026", Semester: models.SemesterFirst, Amount: decimal.NewFromInt(amount),
	}, adminActor)
	require.NoError(t, err)
}

func TestStipendPeriodValidation(t *testing.T) {
	require.NoError(t, firstSemester(6).Validate())
	for _, p := range []StipendPeriod{
		{Month: 0, AcademicYear: "2025-2026", Semester: models.SemesterFirst},
		{Month: 13, AcademicYear: "2025-2026", Semester: models.SemesterFirst},
		{Month: 5, AcademicYear: "2025-2027", Semester: models.SemesterFirst},
		{Month: 5, AcademicYear: "25-26", Semester: models.SemesterFirst},
		{Month: 5, AcademicYear: "2025-2026", Semester: "third"},
	} {
		assert.True(t, appErrors.Is(p.Validate(), appErrors.ErrValidation), "%+v", p)
	}
}

func TestCalculateMonthlyStipend(t *testing.T) {
	amount, ok := CalculateMonthlyStipend(models.ScholarshipAcademicFull, 0, decimal.Zero)
	require.True(t, ok)
	assert.True(t, amount.Equal(decimal.NewFromInt(500)))

	amount, ok = CalculateMonthlyStipend(models.ScholarshipStudentAssistantship, 12.5, decimal.NewFromInt(40))
	require.True(t, ok)
	assert.Equal(t, "500.00", amount.StringFixed(2))

	_, ok = CalculateMonthlyStipend(models.ScholarshipStudentAssistantship, 0, decimal.NewFromInt(40))
	assert.False(t, ok)
}

func TestReleaseStipendDeductsFundOnce(t *testing.T) {
	f := newStipendFixture(true, newDetail("app-1", models.ApplicationApproved, models.ScholarshipAcademicFull))
	f.fund(t, "special_trust_fund", 1200)
	ctx := context.Background()

	stipend, err := f.svc.ReleaseStipend(ctx, ReleaseStipendRequest{ApplicationID: "app-1", Period: firstSemester(8)}, staffActor)
	require.NoError(t, err)
	assert.Equal(t, "500", stipend.Amount.String())
	assert.Equal(t, models.StipendReleased, stipend.Status)
	assert.Equal(t, "special_trust_fund", stipend.FundSource)
	assert.Nil(t, stipend.HoursWorked)
	assert.Equal(t, "700", f.stipends.remaining("special_trust_fund").String())
	assert.Equal(t, "500", f.apps.received["app-1"].String())
	assert.Equal(t, []string{"user-1"}, f.notifier.recipients())
	assert.Equal(t, 1, f.metrics.count)
	assert.Len(t, f.cache.patterns, 2)

	_, err = f.svc.ReleaseStipend(ctx, ReleaseStipendRequest{ApplicationID: "app-1", Period: firstSemester(8)}, staffActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, "700", f.stipends.remaining("special_trust_fund").String())
	assert.Equal(t, 1, f.metrics.count)
}

func TestReleaseStipendInsufficientFunds(t *testing.T) {
	f := newStipendFixture(true, newDetail("app-1", models.ApplicationApproved, models.ScholarshipAcademicFull))
	ctx := context.Background()

	_, err := f.svc.ReleaseStipend(ctx, ReleaseStipendRequest{ApplicationID: "app-1", Period: firstSemester(8)}, staffActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrInsufficientFunds), "no fund allocated")

	f.fund(t, "special_trust_fund", 499)
	_, err = f.svc.ReleaseStipend(ctx, ReleaseStipendRequest{ApplicationID: "app-1", Period: firstSemester(8)}, staffActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrInsufficientFunds))
	assert.Equal(t, "499", f.stipends.remaining("special_trust_fund").String())
	assert.Empty(t, f.stipends.stipends)
}

func TestReleaseStipendGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("not approved", func(t *testing.T) {
		f := newStipendFixture(true, newDetail("app-1", models.ApplicationUnderEvaluation, models.ScholarshipAcademicFull))
		f.fund(t, "special_trust_fund", 5000)
		_, err := f.svc.ReleaseStipend(ctx, ReleaseStipendRequest{ApplicationID: "app-1", Period: firstSemester(8)}, staffActor)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})

	t.Run("continuing eligibility lost", func(t *testing.T) {
		f := newStipendFixture(false, newDetail("app-1", models.ApplicationApproved, models.ScholarshipAcademicFull))
		f.fund(t, "special_trust_fund", 5000)
		_, err := f.svc.ReleaseStipend(ctx, ReleaseStipendRequest{ApplicationID: "app-1", Period: firstSemester(8)}, staffActor)
		assert.True(t, appErrors.Is(err, appErrors.ErrNotEligible))
	})

	t.Run("student cannot release", func(t *testing.T) {
		f := newStipendFixture(true, newDetail("app-1", models.ApplicationApproved, models.ScholarshipAcademicFull))
		_, err := f.svc.ReleaseStipend(ctx, ReleaseStipendRequest{ApplicationID: "app-1", Period: firstSemester(8)}, studentActor)
		assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	})

	t.Run("assistantship needs hours", func(t *testing.T) {
		f := newStipendFixture(true, newDetail("app-1", models.ApplicationApproved, models.ScholarshipStudentAssistantship))
		f.fund(t, "student_assistantship_fund", 5000)
		_, err := f.svc.ReleaseStipend(ctx, ReleaseStipendRequest{ApplicationID: "app-1", Period: firstSemester(8)}, staffActor)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

		stipend, err := f.svc.ReleaseStipend(ctx, ReleaseStipendRequest{ApplicationID: "app-1", Period: firstSemester(8), HoursWorked: 20}, staffActor)
		require.NoError(t, err)
		assert.Equal(t, "1000.00", stipend.Amount.StringFixed(2))
		require.NotNil(t, stipend.HoursWorked)
	})
}

func TestReleaseBatchReportsPerApplication(t *testing.T) {
	paid := newDetail("app-1", models.ApplicationApproved, models.ScholarshipAcademicFull)
	second := newDetail("app-2", models.ApplicationApproved, models.ScholarshipAcademicFull)
	pending := newDetail("app-3", models.ApplicationUnderEvaluation, models.ScholarshipAcademicFull)
	f := newStipendFixture(true, paid, second, pending)
	f.fund(t, "special_trust_fund", 700)

	items, err := f.svc.ReleaseBatch(context.Background(), BatchReleaseRequest{ScholarshipID: "sch-1", Period: firstSemester(9)}, staffActor)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.NotNil(t, items[0].Stipend)
	assert.Empty(t, items[0].Error)
	assert.Nil(t, items[1].Stipend)
	assert.Contains(t, items[1].Error, "remaining")
	assert.Equal(t, "200", f.stipends.remaining("special_trust_fund").String())
}

func TestAllocateFundValidation(t *testing.T) {
	f := newStipendFixture(true)
	ctx := context.Background()
	valid := AllocateFundRequest{FundSource: "general_fund", AcademicYear: "2025-2026", Semester: models.SemesterFirst, Amount: decimal.NewFromInt(100)}

	_, err := f.svc.AllocateFund(ctx, valid, staffActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	zero := valid
	zero.Amount = decimal.Zero
	_, err = f.svc.AllocateFund(ctx, zero, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	fund, err := f.svc.AllocateFund(ctx, valid, adminActor)
	require.NoError(t, err)
	fund, err = f.svc.AllocateFund(ctx, valid, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "200", fund.AllocatedBudget.String())
	assert.Equal(t, "200", fund.RemainingBudget.String())

	funds, err := f.svc.ListFunds(ctx, staffActor)
	require.NoError(t, err)
	assert.Len(t, funds, 1)
}

func TestListStipendsVisibility(t *testing.T) {
	f := newStipendFixture(true, newDetail("app-1", models.ApplicationApproved, models.ScholarshipAcademicFull))

	rows, err := f.svc.ListStipends(context.Background(), "app-1", studentActor)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	_, err = f.svc.ListStipends(context.Background(), "app-1", otherStudent)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
