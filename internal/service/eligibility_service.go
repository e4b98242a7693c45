package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// Requirement keys reported by the eligibility engine.
const (
	ReqScholarshipOpen         = "scholarship_open"
	ReqEnrolled                = "enrolled"
	ReqMinimumUnits            = "minimum_units"
	ReqNoActiveScholarship     = "no_active_scholarship"
	ReqNoFailedSubjects        = "no_failed_subjects"
	ReqGWAAvailable            = "gwa_available"
	ReqGWAFullScholar          = "gwa_full_scholar"
	ReqGWAPartialScholar       = "gwa_partial_scholar"
	ReqFullLoadUnits           = "full_load_units"
	ReqNoGradeBelow175         = "no_grade_below_1_75"
	ReqNoDropDeferFail         = "no_drop_defer_fail_marks"
	ReqMaxUnitsAssistantship   = "max_units_assistantship"
	ReqNoFailingOrIncomplete   = "no_failing_or_incomplete"
	ReqMembershipDuration      = "membership_duration"
	ReqGWAEconomicAssistance   = "gwa_economic_assistance"
	ReqValidIndigencyCert      = "valid_indigency_certificate"
	ReqSupportedScholarship    = "supported_scholarship_type"
	ReqContinuingGWAMaintained = "gwa_maintained"
)

// RequirementCheck is one evaluated rule.
type RequirementCheck struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	Detail      string `json:"detail,omitempty"`
}

// EligibilityResult is the structured pass/fail report.
type EligibilityResult struct {
	Eligible           bool                   `json:"eligible"`
	ScholarshipType    models.ScholarshipType `json:"scholarship_type"`
	RequirementsMet    []RequirementCheck     `json:"requirements_met"`
	RequirementsFailed []RequirementCheck     `json:"requirements_failed"`
	Messages           []string               `json:"messages"`
}

func newEligibilityResult(t models.ScholarshipType) *EligibilityResult {
	return &EligibilityResult{
		ScholarshipType:    t,
		RequirementsMet:    []RequirementCheck{},
		RequirementsFailed: []RequirementCheck{},
		Messages:           []string{},
	}
}

func (r *EligibilityResult) check(ok bool, key, description, detail string) bool {
	entry := RequirementCheck{Key: key, Description: description, Detail: detail}
	if ok {
		r.RequirementsMet = append(r.RequirementsMet, entry)
	} else {
		r.RequirementsFailed = append(r.RequirementsFailed, entry)
	}
	return ok
}

func (r *EligibilityResult) note(format string, args ...interface{}) {
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

func (r *EligibilityResult) merge(other *EligibilityResult) {
	r.RequirementsMet = append(r.RequirementsMet, other.RequirementsMet...)
	r.RequirementsFailed = append(r.RequirementsFailed, other.RequirementsFailed...)
	r.Messages = append(r.Messages, other.Messages...)
}

func (r *EligibilityResult) finalize() *EligibilityResult {
	r.Eligible = len(r.RequirementsFailed) == 0
	return r
}

// Met reports whether the named requirement was satisfied.
func (r *EligibilityResult) Met(key string) bool {
	for _, req := range r.RequirementsMet {
		if req.Key == key {
			return true
		}
	}
	return false
}

// Failed reports whether the named requirement failed.
func (r *EligibilityResult) Failed(key string) bool {
	for _, req := range r.RequirementsFailed {
		if req.Key == key {
			return true
		}
	}
	return false
}

// EligibilityInput carries everything the rule engine reads.
type EligibilityInput struct {
	Profile           models.StudentProfile
	Scholarship       models.Scholarship
	PriorTermGrades   []models.SubjectGrade
	OtherActiveAwards []string
	MembershipMonths  *int
	Now               time.Time
}

// Evaluate runs basic requirements then, if they all pass, the type-specific rule set.
// It has no side effects and is deterministic for a given input.
func Evaluate(in EligibilityInput) *EligibilityResult {
	result := newEligibilityResult(in.Scholarship.Type)

	basicOK := true
	open := in.Scholarship.Status == models.ScholarshipStatusActive && !in.Now.After(in.Scholarship.Deadline)
	basicOK = result.check(open, ReqScholarshipOpen, "Scholarship is accepting applications",
		fmt.Sprintf("status %s, deadline %s", in.Scholarship.Status, in.Scholarship.Deadline.Format(time.RFC3339))) && basicOK
	basicOK = result.check(in.Profile.EnrollmentStatus == models.EnrollmentEnrolled, ReqEnrolled,
		"Currently enrolled", fmt.Sprintf("enrollment status %s", in.Profile.EnrollmentStatus)) && basicOK
	basicOK = result.check(in.Profile.Units >= minimumUnitLoad, ReqMinimumUnits,
		fmt.Sprintf("Carrying at least %d units", minimumUnitLoad), fmt.Sprintf("%d units", in.Profile.Units)) && basicOK
	basicOK = result.check(len(in.OtherActiveAwards) == 0, ReqNoActiveScholarship,
		"No other active scholarship", fmt.Sprintf("%d active scholarship(s)", len(in.OtherActiveAwards))) && basicOK
	failed, dropped := countFailedOrDropped(in.PriorTermGrades)
	basicOK = result.check(failed+dropped == 0, ReqNoFailedSubjects,
		"No failed or dropped subjects in the prior term", fmt.Sprintf("%d failed, %d dropped", failed, dropped)) && basicOK

	if !basicOK {
		result.note("Basic requirements not met; scholarship-specific criteria were not evaluated.")
		return result.finalize()
	}

	switch in.Scholarship.Type {
	case models.ScholarshipAcademicFull, models.ScholarshipAcademicPartial:
		result.merge(CheckGWARequirements(in.Profile, in.Scholarship.Type))
		result.check(in.Profile.Units >= fullLoadUnits, ReqFullLoadUnits,
			fmt.Sprintf("Carrying a full load of at least %d units", fullLoadUnits), fmt.Sprintf("%d units", in.Profile.Units))
		worst := worstNumericGrade(in.PriorTermGrades)
		detail := "no numeric grades"
		if worst != nil {
			detail = fmt.Sprintf("lowest grade %.2f", *worst)
		}
		result.check(worst == nil || *worst <= maxSubjectGradeAcademic, ReqNoGradeBelow175,
			fmt.Sprintf("No subject grade lower than %.2f", maxSubjectGradeAcademic), detail)
		marks := countRemarks(in.PriorTermGrades, models.RemarkDropped, models.RemarkDeferred, models.RemarkFailed)
		result.check(marks == 0, ReqNoDropDeferFail, "No Dropped, Deferred or Failed marks", fmt.Sprintf("%d mark(s)", marks))
	case models.ScholarshipStudentAssistantship:
		result.check(in.Profile.Units <= assistantshipMaxUnits, ReqMaxUnitsAssistantship,
			fmt.Sprintf("Carrying at most %d units", assistantshipMaxUnits), fmt.Sprintf("%d units", in.Profile.Units))
		failing := countRemarks(in.PriorTermGrades, models.RemarkFailed, models.RemarkIncomplete) + countFailingGrades(in.PriorTermGrades)
		result.check(failing == 0, ReqNoFailingOrIncomplete, "No failing or incomplete grades in the prior term",
			fmt.Sprintf("%d failing/incomplete", failing))
	case models.ScholarshipPerformingArtsFull, models.ScholarshipPerformingArtsPartial:
		required, _ := MembershipMonthsRequired(in.Scholarship.Type)
		description := fmt.Sprintf("Member of a performing group for at least %d months", required)
		if in.MembershipMonths == nil {
			result.check(true, ReqMembershipDuration, description, "pending manual verification")
			result.note("Membership duration will be verified manually by the coach/adviser.")
		} else {
			result.check(*in.MembershipMonths >= required, ReqMembershipDuration, description,
				fmt.Sprintf("%d month(s) of membership", *in.MembershipMonths))
		}
	case models.ScholarshipEconomicAssistance:
		result.merge(CheckGWARequirements(in.Profile, in.Scholarship.Type))
		valid := in.Profile.IndigencyValidUntil != nil && !in.Now.After(*in.Profile.IndigencyValidUntil)
		detail := "no certificate on file"
		if in.Profile.IndigencyValidUntil != nil {
			detail = fmt.Sprintf("valid until %s", in.Profile.IndigencyValidUntil.Format("2006-01-02"))
		}
		result.check(valid, ReqValidIndigencyCert, "Valid certificate of indigency", detail)
	default:
		result.check(false, ReqSupportedScholarship, "Supported scholarship type", string(in.Scholarship.Type))
	}

	return result.finalize()
}

// CheckGWARequirements evaluates only the GWA rules for a scholarship type and
// suggests the adjacent academic tier when the GWA falls just outside the band.
// A missing GWA fails gwa_available instead of raising an error.
func CheckGWARequirements(profile models.StudentProfile, t models.ScholarshipType) *EligibilityResult {
	result := newEligibilityResult(t)
	if !result.check(profile.CurrentGWA != nil, ReqGWAAvailable, "GWA on record", "") {
		result.note("No GWA on record; grades must be encoded before eligibility can be confirmed.")
		return result.finalize()
	}
	gwa := *profile.CurrentGWA

	switch t {
	case models.ScholarshipAcademicFull:
		ok := result.check(academicFullBand.Contains(gwa), ReqGWAFullScholar,
			fmt.Sprintf("GWA between %.3f and %.3f", academicFullBand.Min, academicFullBand.Max), fmt.Sprintf("GWA %.3f", gwa))
		if !ok && gwa > academicFullBand.Max && gwa <= academicPartialBand.Max {
			if academicPartialBand.Contains(gwa) {
				result.note("GWA %.3f qualifies for the %s scholarship instead; consider applying there.", gwa, models.ScholarshipAcademicPartial)
			} else {
				result.note("GWA %.3f falls between the full and partial tiers.", gwa)
			}
		}
	case models.ScholarshipAcademicPartial:
		ok := result.check(academicPartialBand.Contains(gwa), ReqGWAPartialScholar,
			fmt.Sprintf("GWA between %.3f and %.3f", academicPartialBand.Min, academicPartialBand.Max), fmt.Sprintf("GWA %.3f", gwa))
		if !ok && gwa < academicPartialBand.Min {
			if academicFullBand.Contains(gwa) {
				result.note("GWA %.3f qualifies for the %s scholarship instead; consider applying there.", gwa, models.ScholarshipAcademicFull)
			} else {
				result.note("GWA %.3f falls between the full and partial tiers.", gwa)
			}
		}
	case models.ScholarshipEconomicAssistance:
		result.check(gwa <= economicAssistanceMaxGWA, ReqGWAEconomicAssistance,
			fmt.Sprintf("GWA of %.2f or better", economicAssistanceMaxGWA), fmt.Sprintf("GWA %.3f", gwa))
	}
	return result.finalize()
}

func countFailedOrDropped(grades []models.SubjectGrade) (failed, dropped int) {
	for _, g := range grades {
		switch {
		case g.Remark == models.RemarkDropped:
			dropped++
		case g.Remark == models.RemarkFailed:
			failed++
		case g.Grade != nil && *g.Grade > failingGradeThreshold:
			failed++
		}
	}
	return failed, dropped
}

func countFailingGrades(grades []models.SubjectGrade) int {
	count := 0
	for _, g := range grades {
		if g.Remark != models.RemarkFailed && g.Grade != nil && *g.Grade > failingGradeThreshold {
			count++
		}
	}
	return count
}

func countRemarks(grades []models.SubjectGrade, remarks ...models.GradeRemark) int {
	count := 0
	for _, g := range grades {
		for _, r := range remarks {
			if g.Remark == r {
				count++
				break
			}
		}
	}
	return count
}

func worstNumericGrade(grades []models.SubjectGrade) *float64 {
	var worst *float64
	for _, g := range grades {
		if g.Grade == nil {
			continue
		}
		if worst == nil || *g.Grade > *worst {
			v := *g.Grade
			worst = &v
		}
	}
	return worst
}

func monthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

type eligibilityStudentStore interface {
	GetProfileByID(ctx context.Context, id string) (*models.StudentProfile, error)
	GetProfileByUserID(ctx context.Context, userID string) (*models.StudentProfile, error)
	ListPriorTermGrades(ctx context.Context, studentID string) ([]models.SubjectGrade, error)
}

type activeAwardLister interface {
	ListActiveScholarshipIDs(ctx context.Context, studentID string) ([]string, error)
}

type scholarshipReader interface {
	GetByID(ctx context.Context, id string) (*models.Scholarship, error)
}

// MembershipVerifier resolves how long a student has belonged to a performing group.
// A nil result means no verified record exists.
type MembershipVerifier interface {
	MembershipMonths(ctx context.Context, profile *models.StudentProfile) (*int, error)
}

// ProfileMembershipVerifier reads the membership start date recorded on the profile by a coach/adviser.
type ProfileMembershipVerifier struct {
	Now func() time.Time
}

// MembershipMonths implements MembershipVerifier.
func (v ProfileMembershipVerifier) MembershipMonths(_ context.Context, profile *models.StudentProfile) (*int, error) {
	if profile == nil || profile.MembershipStartedAt == nil {
		return nil, nil
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	months := monthsBetween(*profile.MembershipStartedAt, now())
	return &months, nil
}

// EligibilityService loads student records and runs the rule engine.
type EligibilityService struct {
	students     eligibilityStudentStore
	awards       activeAwardLister
	scholarships scholarshipReader
	membership   MembershipVerifier
	logger       *zap.Logger
	now          func() time.Time
}

// NewEligibilityService constructs the service.
func NewEligibilityService(students eligibilityStudentStore, awards activeAwardLister, scholarships scholarshipReader, membership MembershipVerifier, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if membership == nil {
		membership = ProfileMembershipVerifier{}
	}
	return &EligibilityService{
		students:     students,
		awards:       awards,
		scholarships: scholarships,
		membership:   membership,
		logger:       logger,
		now:          time.Now,
	}
}

// CheckEligibility evaluates a student against a scholarship by id.
func (s *EligibilityService) CheckEligibility(ctx context.Context, studentID, scholarshipID string) (*EligibilityResult, error) {
	profile, err := s.students.GetProfileByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Internal(err, "failed to load student profile")
	}
	scholarship, err := s.scholarships.GetByID(ctx, scholarshipID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scholarship not found")
		}
		return nil, appErrors.Internal(err, "failed to load scholarship")
	}
	return s.Evaluate(ctx, profile, scholarship)
}

// CheckForActor runs CheckEligibility on behalf of a caller. Students are always
// evaluated against their own profile; staff must name the profile.
func (s *EligibilityService) CheckForActor(ctx context.Context, studentID, scholarshipID string, actor *models.Actor) (*EligibilityResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		if studentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student_id required")
		}
		return s.CheckEligibility(ctx, studentID, scholarshipID)
	}
	profile, err := s.students.GetProfileByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Internal(err, "failed to load student profile")
	}
	if studentID != "" && studentID != profile.ID {
		return nil, appErrors.ErrForbidden
	}
	return s.CheckEligibility(ctx, profile.ID, scholarshipID)
}

// Evaluate runs the rule engine for already loaded records.
func (s *EligibilityService) Evaluate(ctx context.Context, profile *models.StudentProfile, scholarship *models.Scholarship) (*EligibilityResult, error) {
	grades, err := s.students.ListPriorTermGrades(ctx, profile.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load prior term grades")
	}
	awards, err := s.otherAwards(ctx, profile.ID, scholarship.ID)
	if err != nil {
		return nil, err
	}
	var months *int
	if _, ok := MembershipMonthsRequired(scholarship.Type); ok {
		months, err = s.membership.MembershipMonths(ctx, profile)
		if err != nil {
			s.logger.Warn("membership lookup failed", zap.String("student_id", profile.ID), zap.Error(err))
			months = nil
		}
	}
	result := Evaluate(EligibilityInput{
		Profile:           *profile,
		Scholarship:       *scholarship,
		PriorTermGrades:   grades,
		OtherActiveAwards: awards,
		MembershipMonths:  months,
		Now:               s.now(),
	})
	s.logger.Debug("eligibility evaluated",
		zap.String("student_id", profile.ID),
		zap.String("scholarship_id", scholarship.ID),
		zap.Bool("eligible", result.Eligible),
		zap.Int("failed", len(result.RequirementsFailed)),
	)
	return result, nil
}

// ContinuingEligibility re-checks the conditions a scholar must keep between disbursements:
// enrollment, GWA maintenance for the type and no other active scholarship.
func (s *EligibilityService) ContinuingEligibility(ctx context.Context, profile *models.StudentProfile, scholarship *models.Scholarship) (*EligibilityResult, error) {
	result := newEligibilityResult(scholarship.Type)
	result.check(profile.EnrollmentStatus == models.EnrollmentEnrolled, ReqEnrolled,
		"Currently enrolled", fmt.Sprintf("enrollment status %s", profile.EnrollmentStatus))
	if ceiling, ok := GWACeiling(scholarship.Type); ok {
		maintained := profile.CurrentGWA != nil && *profile.CurrentGWA <= ceiling
		detail := "no GWA on record"
		if profile.CurrentGWA != nil {
			detail = fmt.Sprintf("GWA %.3f, ceiling %.3f", *profile.CurrentGWA, ceiling)
		}
		result.check(maintained, ReqContinuingGWAMaintained, "GWA maintained for the scholarship", detail)
	}
	awards, err := s.otherAwards(ctx, profile.ID, scholarship.ID)
	if err != nil {
		return nil, err
	}
	result.check(len(awards) == 0, ReqNoActiveScholarship, "No other active scholarship",
		fmt.Sprintf("%d active scholarship(s)", len(awards)))
	return result.finalize(), nil
}

func (s *EligibilityService) otherAwards(ctx context.Context, studentID, scholarshipID string) ([]string, error) {
	if s.awards == nil {
		return nil, nil
	}
	ids, err := s.awards.ListActiveScholarshipIDs(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load active scholarships")
	}
	others := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != scholarshipID {
			others = append(others, id)
		}
	}
	return others, nil
}
