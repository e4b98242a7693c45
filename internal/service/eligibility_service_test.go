package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

var evalNow = time.Date(2025, time.August, 1, 9, 0, 0, 0, time.UTC)

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func enrolledProfile(gwa *float64, units int) models.StudentProfile {
	return models.StudentProfile{
		ID:               "stu-1",
		UserID:           "user-1",
		EnrollmentStatus: models.EnrollmentEnrolled,
		Units:            units,
		CurrentGWA:       gwa,
	}
}

func openScholarship(t models.ScholarshipType) models.Scholarship {
	return models.Scholarship{
		ID:       "sch-1",
		Type:     t,
		Status:   models.ScholarshipStatusActive,
		Deadline: evalNow.Add(30 * 24 * time.Hour),
		Slots:    10,
	}
}

func TestEvaluateAcademicFullEligible(t *testing.T) {
	result := Evaluate(EligibilityInput{
		Profile:     enrolledProfile(floatPtr(1.40), 18),
		Scholarship: openScholarship(models.ScholarshipAcademicFull),
		PriorTermGrades: []models.SubjectGrade{
			{SubjectCode: "MATH101", Grade: floatPtr(1.25), Remark: models.RemarkPassed},
			{SubjectCode: "ENG101", Grade: floatPtr(1.50), Remark: models.RemarkPassed},
		},
		Now: evalNow,
	})

	require.True(t, result.Eligible)
	assert.Empty(t, result.RequirementsFailed)
	assert.True(t, result.Met(ReqGWAFullScholar))
	assert.True(t, result.Met(ReqFullLoadUnits))
	assert.True(t, result.Met(ReqNoGradeBelow175))
}

func TestEvaluateAcademicFullSuggestsPartialTier(t *testing.T) {
	result := Evaluate(EligibilityInput{
		Profile:     enrolledProfile(floatPtr(1.60), 18),
		Scholarship: openScholarship(models.ScholarshipAcademicFull),
		Now:         evalNow,
	})

	require.False(t, result.Eligible)
	assert.True(t, result.Failed(ReqGWAFullScholar))
	require.NotEmpty(t, result.Messages)
	assert.Contains(t, result.Messages[0], string(models.ScholarshipAcademicPartial))
}

func TestEvaluateAcademicPartialSuggestsFullTier(t *testing.T) {
	result := Evaluate(EligibilityInput{
		Profile:     enrolledProfile(floatPtr(1.30), 18),
		Scholarship: openScholarship(models.ScholarshipAcademicPartial),
		Now:         evalNow,
	})

	require.False(t, result.Eligible)
	assert.True(t, result.Failed(ReqGWAPartialScholar))
	require.NotEmpty(t, result.Messages)
	assert.Contains(t, result.Messages[0], string(models.ScholarshipAcademicFull))
}

func TestEvaluateBasicFailureSkipsTypeRules(t *testing.T) {
	profile := enrolledProfile(floatPtr(1.20), 9)
	profile.EnrollmentStatus = models.EnrollmentOnLeave

	result := Evaluate(EligibilityInput{
		Profile:           profile,
		Scholarship:       openScholarship(models.ScholarshipAcademicFull),
		OtherActiveAwards: []string{"sch-other"},
		Now:               evalNow,
	})

	require.False(t, result.Eligible)
	assert.True(t, result.Failed(ReqEnrolled))
	assert.True(t, result.Failed(ReqMinimumUnits))
	assert.True(t, result.Failed(ReqNoActiveScholarship))
	assert.False(t, result.Met(ReqGWAFullScholar))
	assert.False(t, result.Failed(ReqGWAFullScholar))
	assert.Len(t, result.Messages, 1)
}

func TestEvaluateClosedScholarship(t *testing.T) {
	scholarship := openScholarship(models.ScholarshipEconomicAssistance)
	scholarship.Deadline = evalNow.Add(-time.Hour)

	result := Evaluate(EligibilityInput{
		Profile:     enrolledProfile(floatPtr(2.0), 15),
		Scholarship: scholarship,
		Now:         evalNow,
	})

	require.False(t, result.Eligible)
	assert.True(t, result.Failed(ReqScholarshipOpen))
}

func TestEvaluateFailedSubjectsByRemarkAndGrade(t *testing.T) {
	result := Evaluate(EligibilityInput{
		Profile:     enrolledProfile(floatPtr(2.0), 15),
		Scholarship: openScholarship(models.ScholarshipStudentAssistantship),
		PriorTermGrades: []models.SubjectGrade{
			{SubjectCode: "PE1", Grade: floatPtr(5.0)},
			{SubjectCode: "NSTP", Remark: models.RemarkDropped},
		},
		Now: evalNow,
	})

	require.False(t, result.Eligible)
	assert.True(t, result.Failed(ReqNoFailedSubjects))
	assert.Equal(t, "1 failed, 1 dropped", result.RequirementsFailed[0].Detail)
}

func TestEvaluateMissingGWA(t *testing.T) {
	result := Evaluate(EligibilityInput{
		Profile:     enrolledProfile(nil, 18),
		Scholarship: openScholarship(models.ScholarshipAcademicPartial),
		Now:         evalNow,
	})

	require.False(t, result.Eligible)
	assert.True(t, result.Failed(ReqGWAAvailable))
}

func TestEvaluateStudentAssistantship(t *testing.T) {
	grades := []models.SubjectGrade{{SubjectCode: "CS1", Remark: models.RemarkIncomplete}}

	result := Evaluate(EligibilityInput{
		Profile:         enrolledProfile(floatPtr(2.5), 24),
		Scholarship:     openScholarship(models.ScholarshipStudentAssistantship),
		PriorTermGrades: grades,
		Now:             evalNow,
	})

	require.False(t, result.Eligible)
	assert.True(t, result.Failed(ReqMaxUnitsAssistantship))
	assert.True(t, result.Failed(ReqNoFailingOrIncomplete))
}

func TestEvaluatePerformingArtsMembership(t *testing.T) {
	base := EligibilityInput{
		Profile:     enrolledProfile(nil, 15),
		Scholarship: openScholarship(models.ScholarshipPerformingArtsFull),
		Now:         evalNow,
	}

	pending := Evaluate(base)
	require.True(t, pending.Eligible)
	assert.Contains(t, pending.Messages[0], "verified manually")

	short := base
	short.MembershipMonths = intPtr(6)
	require.False(t, Evaluate(short).Eligible)

	partial := base
	partial.Scholarship = openScholarship(models.ScholarshipPerformingArtsPartial)
	partial.MembershipMonths = intPtr(6)
	require.True(t, Evaluate(partial).Eligible)
}

func TestEvaluateEconomicAssistance(t *testing.T) {
	valid := evalNow.Add(90 * 24 * time.Hour)
	expired := evalNow.Add(-24 * time.Hour)

	profile := enrolledProfile(floatPtr(2.10), 15)
	profile.IndigencyValidUntil = &valid
	result := Evaluate(EligibilityInput{Profile: profile, Scholarship: openScholarship(models.ScholarshipEconomicAssistance), Now: evalNow})
	require.True(t, result.Eligible)

	profile.IndigencyValidUntil = &expired
	profile.CurrentGWA = floatPtr(2.50)
	result = Evaluate(EligibilityInput{Profile: profile, Scholarship: openScholarship(models.ScholarshipEconomicAssistance), Now: evalNow})
	require.False(t, result.Eligible)
	assert.True(t, result.Failed(ReqValidIndigencyCert))
	assert.True(t, result.Failed(ReqGWAEconomicAssistance))
}

func TestMonthsBetween(t *testing.T) {
	start := time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 11, monthsBetween(start, time.Date(2025, time.August, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 12, monthsBetween(start, time.Date(2025, time.August, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, monthsBetween(start, start.Add(-time.Hour)))
}

type stubEligibilityStudents struct {
	profiles map[string]*models.StudentProfile
	grades   map[string][]models.SubjectGrade
}

func (s *stubEligibilityStudents) GetProfileByID(_ context.Context, id string) (*models.StudentProfile, error) {
	if p, ok := s.profiles[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubEligibilityStudents) GetProfileByUserID(_ context.Context, userID string) (*models.StudentProfile, error) {
	for _, p := range s.profiles {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubEligibilityStudents) ListPriorTermGrades(_ context.Context, studentID string) ([]models.SubjectGrade, error) {
	return s.grades[studentID], nil
}

type stubAwards struct{ ids []string }

func (s *stubAwards) ListActiveScholarshipIDs(context.Context, string) ([]string, error) {
	return s.ids, nil
}

type stubScholarships struct {
	items map[string]*models.Scholarship
}

func (s *stubScholarships) GetByID(_ context.Context, id string) (*models.Scholarship, error) {
	if sch, ok := s.items[id]; ok {
		return sch, nil
	}
	return nil, sql.ErrNoRows
}

func TestEligibilityServiceCheckEligibility(t *testing.T) {
	profile := enrolledProfile(floatPtr(1.40), 18)
	scholarship := openScholarship(models.ScholarshipAcademicFull)
	svc := NewEligibilityService(
		&stubEligibilityStudents{profiles: map[string]*models.StudentProfile{"stu-1": &profile}},
		&stubAwards{ids: []string{"sch-1"}},
		&stubScholarships{items: map[string]*models.Scholarship{"sch-1": &scholarship}},
		nil,
		nil,
	)
	svc.now = func() time.Time { return evalNow }

	result, err := svc.CheckEligibility(context.Background(), "stu-1", "sch-1")
	require.NoError(t, err)
	assert.True(t, result.Eligible, "an award for the same scholarship does not count as another scholarship")

	_, err = svc.CheckEligibility(context.Background(), "missing", "sch-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestEligibilityServiceCheckForActor(t *testing.T) {
	profile := enrolledProfile(floatPtr(1.40), 18)
	scholarship := openScholarship(models.ScholarshipAcademicFull)
	svc := NewEligibilityService(
		&stubEligibilityStudents{profiles: map[string]*models.StudentProfile{"stu-1": &profile}},
		&stubAwards{},
		&stubScholarships{items: map[string]*models.Scholarship{"sch-1": &scholarship}},
		nil,
		nil,
	)
	svc.now = func() time.Time { return evalNow }
	ctx := context.Background()

	result, err := svc.CheckForActor(ctx, "", "sch-1", studentActor)
	require.NoError(t, err)
	assert.True(t, result.Eligible)

	_, err = svc.CheckForActor(ctx, "stu-9", "sch-1", studentActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.CheckForActor(ctx, "", "sch-1", otherStudent)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.CheckForActor(ctx, "", "sch-1", staffActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	result, err = svc.CheckForActor(ctx, "stu-1", "sch-1", staffActor)
	require.NoError(t, err)
	assert.True(t, result.Eligible)
}

func TestEligibilityServiceContinuingEligibility(t *testing.T) {
	profile := enrolledProfile(floatPtr(1.80), 18)
	scholarship := openScholarship(models.ScholarshipAcademicPartial)
	svc := NewEligibilityService(&stubEligibilityStudents{}, &stubAwards{}, &stubScholarships{}, nil, nil)

	result, err := svc.ContinuingEligibility(context.Background(), &profile, &scholarship)
	require.NoError(t, err)
	require.False(t, result.Eligible)
	assert.True(t, result.Failed(ReqContinuingGWAMaintained))
}

func TestProfileMembershipVerifier(t *testing.T) {
	started := evalNow.AddDate(-1, -1, 0)
	profile := enrolledProfile(nil, 15)
	verifier := ProfileMembershipVerifier{Now: func() time.Time { return evalNow }}

	months, err := verifier.MembershipMonths(context.Background(), &profile)
	require.NoError(t, err)
	assert.Nil(t, months)

	profile.MembershipStartedAt = &started
	months, err = verifier.MembershipMonths(context.Background(), &profile)
	require.NoError(t, err)
	require.NotNil(t, months)
	assert.Equal(t, 13, *months)
}
