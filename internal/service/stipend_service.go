package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

var academicYearPattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

// DefaultAssistantshipHourlyRate is used when no rate is configured.
var DefaultAssistantshipHourlyRate = decimal.NewFromInt(40)

type stipendStore interface {
	GetFundForUpdate(ctx context.Context, key models.FundKey) (*models.FundTracking, error)
	AllocateFund(ctx context.Context, key models.FundKey, amount decimal.Decimal, at time.Time) (*models.FundTracking, error)
	DeductFund(ctx context.Context, fundID string, amount decimal.Decimal, at time.Time) error
	ListFunds(ctx context.Context) ([]models.FundTracking, error)
	ExistsForPeriod(ctx context.Context, applicationID string, month int, academicYear string, semester models.Semester) (bool, error)
	Create(ctx context.Context, stipend *models.ScholarshipStipend) error
	ListByApplication(ctx context.Context, applicationID string) ([]models.ScholarshipStipend, error)
}

type stipendApplicationStore interface {
	GetDetail(ctx context.Context, id string) (*models.ApplicationDetail, error)
	GetDetailForUpdate(ctx context.Context, id string) (*models.ApplicationDetail, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	AddAmountReceived(ctx context.Context, id string, amount decimal.Decimal, at time.Time) error
}

type continuingEligibilityChecker interface {
	ContinuingEligibility(ctx context.Context, profile *models.StudentProfile, scholarship *models.Scholarship) (*EligibilityResult, error)
}

type stipendRecorder interface {
	RecordStipendRelease(fundSource string, amount decimal.Decimal)
}

// StipendPeriod identifies one disbursement month.
type StipendPeriod struct {
	Month        int
	AcademicYear string
	Semester     models.Semester
}

// Validate checks the month range, the consecutive-year format and the semester.
func (p StipendPeriod) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}
	if err := ValidateAcademicYear(p.AcademicYear); err != nil {
		return err
	}
	if !p.Semester.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "semester must be first, second or summer")
	}
	return nil
}

// ValidateAcademicYear accepts YYYY-YYYY where the second year follows the first.
func ValidateAcademicYear(value string) error {
	m := academicYearPattern.FindStringSubmatch(value)
	if m == nil {
		return appErrors.Clone(appErrors.ErrValidation, "academic_year must look like 2024-2025")
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	if end != start+1 {
		return appErrors.Clone(appErrors.ErrValidation, "academic_year must span consecutive years")
	}
	return nil
}

// ReleaseStipendRequest asks for one month of disbursement.
type ReleaseStipendRequest struct {
	ApplicationID string
	Period        StipendPeriod
	HoursWorked   float64
}

// BatchReleaseRequest releases one period for every approved application of a scholarship.
type BatchReleaseRequest struct {
	ScholarshipID string
	Period        StipendPeriod
}

// BatchReleaseItem is the outcome for one application in a batch.
type BatchReleaseItem struct {
	ApplicationID string                     `json:"application_id"`
	Stipend       *models.ScholarshipStipend `json:"stipend,omitempty"`
	Error         string                     `json:"error,omitempty"`
}

// AllocateFundRequest tops up a fund pool.
type AllocateFundRequest struct {
	FundSource   string
	AcademicYear string
	Semester     models.Semester
	Amount       decimal.Decimal
}

// StipendService releases stipends against fund pools.
type StipendService struct {
	tx           txRunner
	stipends     stipendStore
	applications stipendApplicationStore
	students     studentProfileFinder
	scholarships scholarshipReader
	eligibility  continuingEligibilityChecker
	audit        auditLogger
	notifier     Notifier
	metrics      stipendRecorder
	cache        cacheInvalidator
	logger       *zap.Logger
	hourlyRate   decimal.Decimal
	now          func() time.Time
}

// StipendServiceOption configures optional collaborators.
type StipendServiceOption func(*StipendService)

// WithStipendAudit sets the audit logger.
func WithStipendAudit(a auditLogger) StipendServiceOption {
	return func(s *StipendService) { s.audit = a }
}

// WithStipendNotifier sets the notification sink.
func WithStipendNotifier(n Notifier) StipendServiceOption {
	return func(s *StipendService) { s.notifier = n }
}

// WithStipendMetrics sets the release counter.
func WithStipendMetrics(m stipendRecorder) StipendServiceOption {
	return func(s *StipendService) { s.metrics = m }
}

// WithStipendCache sets the cache whose report entries are dropped after releases.
func WithStipendCache(c cacheInvalidator) StipendServiceOption {
	return func(s *StipendService) { s.cache = c }
}

// WithHourlyRate overrides the assistantship hourly rate.
func WithHourlyRate(rate decimal.Decimal) StipendServiceOption {
	return func(s *StipendService) {
		if rate.IsPositive() {
			s.hourlyRate = rate
		}
	}
}

// NewStipendService constructs the service.
func NewStipendService(
	tx txRunner,
	stipends stipendStore,
	applications stipendApplicationStore,
	students studentProfileFinder,
	scholarships scholarshipReader,
	eligibility continuingEligibilityChecker,
	logger *zap.Logger,
	opts ...StipendServiceOption,
) *StipendService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tx == nil {
		tx = noTx{}
	}
	s := &StipendService{
		tx:           tx,
		stipends:     stipends,
		applications: applications,
		students:     students,
		scholarships: scholarships,
		eligibility:  eligibility,
		logger:       logger,
		hourlyRate:   DefaultAssistantshipHourlyRate,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ReleaseStipend disburses one month to an approved scholar. A second release for
// the same period is rejected and leaves the fund untouched.
func (s *StipendService) ReleaseStipend(ctx context.Context, req ReleaseStipendRequest, actor *models.Actor) (*models.ScholarshipStipend, error) {
	if !canDisburse(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only OSAS staff may release stipends")
	}
	if err := req.Period.Validate(); err != nil {
		return nil, err
	}
	if req.HoursWorked < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "hours_worked cannot be negative")
	}

	var result *models.ScholarshipStipend
	var detail *models.ApplicationDetail
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		current, err := s.applications.GetDetailForUpdate(txCtx, req.ApplicationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "application not found")
			}
			return appErrors.Internal(err, "failed to load application")
		}
		detail = current
		if current.Status != models.ApplicationApproved {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("stipends are only released to approved applications, this one is %s", humanize(string(current.Status))))
		}
		if err := s.checkContinuingEligibility(txCtx, current); err != nil {
			return err
		}

		exists, err := s.stipends.ExistsForPeriod(txCtx, current.ID, req.Period.Month, req.Period.AcademicYear, req.Period.Semester)
		if err != nil {
			return appErrors.Internal(err, "failed to check stipend period")
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "stipend already released for this period")
		}

		amount, ok := CalculateMonthlyStipend(current.ScholarshipType, req.HoursWorked, s.hourlyRate)
		if !ok {
			if current.ScholarshipType == models.ScholarshipStudentAssistantship {
				return appErrors.Clone(appErrors.ErrValidation, "hours_worked is required for student assistantships")
			}
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no stipend amount defined for %s", current.ScholarshipType))
		}

		fundSource := current.FundSource
		if strings.TrimSpace(fundSource) == "" {
			fundSource = DefaultFundSource(current.ScholarshipType)
		}
		fund, err := s.stipends.GetFundForUpdate(txCtx, models.FundKey{FundSource: fundSource, AcademicYear: req.Period.AcademicYear, Semester: req.Period.Semester})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInsufficientFunds, fmt.Sprintf("no %s fund allocated for %s %s semester", fundSource, req.Period.AcademicYear, req.Period.Semester))
			}
			return appErrors.Internal(err, "failed to load fund")
		}
		if fund.RemainingBudget.LessThan(amount) {
			return appErrors.Clone(appErrors.ErrInsufficientFunds,
				fmt.Sprintf("%s fund has %s remaining, %s required", fundSource, fund.RemainingBudget.StringFixed(2), amount.StringFixed(2)))
		}

		now := s.now().UTC()
		if err := s.stipends.DeductFund(txCtx, fund.ID, amount, now); err != nil {
			return appErrors.Internal(err, "failed to deduct fund")
		}
		releasedBy := actor.UserID
		stipend := &models.ScholarshipStipend{
			ID:            uuid.NewString(),
			ApplicationID: current.ID,
			Amount:        amount,
			Month:         req.Period.Month,
			AcademicYear:  req.Period.AcademicYear,
			Semester:      req.Period.Semester,
			Status:        models.StipendReleased,
			FundSource:    fundSource,
			ReleasedBy:    &releasedBy,
			ReleasedAt:    &now,
			CreatedAt:     now,
		}
		if current.ScholarshipType == models.ScholarshipStudentAssistantship {
			hours := req.HoursWorked
			stipend.HoursWorked = &hours
		}
		if err := s.stipends.Create(txCtx, stipend); err != nil {
			return appErrors.Internal(err, "failed to record stipend")
		}
		if err := s.applications.AddAmountReceived(txCtx, current.ID, amount, now); err != nil {
			return appErrors.Internal(err, "failed to update amount received")
		}

		recordAudit(txCtx, s.audit, s.logger, actor, models.AuditActionStipendRelease, "stipend", stipend.ID, nil,
			map[string]interface{}{"application_id": current.ID, "amount": amount.StringFixed(2), "fund_source": fundSource,
				"month": stipend.Month, "academic_year": stipend.AcademicYear, "semester": stipend.Semester})
		notifyAfterCommit(txCtx, s.notifier, models.Notification{
			UserID:        current.StudentUserID,
			Title:         "Stipend released",
			Message:       fmt.Sprintf("Your %s stipend of PHP %s for month %d was released.", current.ScholarshipName, amount.StringFixed(2), stipend.Month),
			Type:          models.NotificationStipend,
			Data:          map[string]interface{}{"amount": amount.StringFixed(2), "month": stipend.Month, "academic_year": stipend.AcademicYear},
			RelatedEntity: &models.RelatedEntity{Type: "stipend", ID: stipend.ID},
			CreatedAt:     now,
		})
		invalidateReportsAfterCommit(txCtx, s.cache, s.logger)
		result = stipend
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordStipendRelease(result.FundSource, result.Amount)
	}
	s.logger.Info("stipend released",
		zap.String("application_id", detail.ID),
		zap.String("stipend_id", result.ID),
		zap.String("amount", result.Amount.StringFixed(2)),
		zap.String("fund_source", result.FundSource),
	)
	return result, nil
}

// ReleaseBatch releases a period for every approved application of a scholarship.
// Each application runs in its own transaction; failures are reported per item.
// Assistantships are skipped since they need hours worked.
func (s *StipendService) ReleaseBatch(ctx context.Context, req BatchReleaseRequest, actor *models.Actor) ([]BatchReleaseItem, error) {
	if !canDisburse(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only OSAS staff may release stipends")
	}
	if err := req.Period.Validate(); err != nil {
		return nil, err
	}
	const pageSize = 100
	items := make([]BatchReleaseItem, 0)
	for offset := 0; ; offset += pageSize {
		page, total, err := s.applications.List(ctx, models.ApplicationFilter{
			ScholarshipID: req.ScholarshipID,
			Status:        []models.ApplicationStatus{models.ApplicationApproved},
			Limit:         pageSize,
			Offset:        offset,
		})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list approved applications")
		}
		for _, app := range page {
			item := BatchReleaseItem{ApplicationID: app.ID}
			if app.ScholarshipType == models.ScholarshipStudentAssistantship {
				item.Error = "hours_worked is required for student assistantships"
				items = append(items, item)
				continue
			}
			stipend, err := s.ReleaseStipend(ctx, ReleaseStipendRequest{ApplicationID: app.ID, Period: req.Period}, actor)
			if err != nil {
				item.Error = appErrors.FromError(err).Message
			} else {
				item.Stipend = stipend
			}
			items = append(items, item)
		}
		if len(page) < pageSize || offset+len(page) >= total {
			break
		}
	}
	return items, nil
}

// AllocateFund creates or tops up a fund pool.
func (s *StipendService) AllocateFund(ctx context.Context, req AllocateFundRequest, actor *models.Actor) (*models.FundTracking, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may allocate funds")
	}
	source := strings.TrimSpace(req.FundSource)
	if source == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fund_source is required")
	}
	if err := ValidateAcademicYear(req.AcademicYear); err != nil {
		return nil, err
	}
	if !req.Semester.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester must be first, second or summer")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}

	var fund *models.FundTracking
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		allocated, err := s.stipends.AllocateFund(txCtx, models.FundKey{FundSource: source, AcademicYear: req.AcademicYear, Semester: req.Semester}, req.Amount, s.now().UTC())
		if err != nil {
			return appErrors.Internal(err, "failed to allocate fund")
		}
		recordAudit(txCtx, s.audit, s.logger, actor, models.AuditActionFundAllocate, "fund", allocated.ID, nil,
			map[string]interface{}{"fund_source": source, "academic_year": req.AcademicYear, "semester": req.Semester, "amount": req.Amount.StringFixed(2)})
		invalidateReportsAfterCommit(txCtx, s.cache, s.logger)
		fund = allocated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fund, nil
}

// ListFunds returns every fund pool.
func (s *StipendService) ListFunds(ctx context.Context, actor *models.Actor) ([]models.FundTracking, error) {
	if !canDisburse(actor) {
		return nil, appErrors.ErrForbidden
	}
	funds, err := s.stipends.ListFunds(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list funds")
	}
	if funds == nil {
		funds = []models.FundTracking{}
	}
	return funds, nil
}

// ListStipends returns the disbursements of an application.
func (s *StipendService) ListStipends(ctx context.Context, applicationID string, actor *models.Actor) ([]models.ScholarshipStipend, error) {
	detail, err := s.applications.GetDetail(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	if !canViewApplication(actor, detail) {
		return nil, appErrors.ErrForbidden
	}
	rows, err := s.stipends.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list stipends")
	}
	if rows == nil {
		rows = []models.ScholarshipStipend{}
	}
	return rows, nil
}

func (s *StipendService) checkContinuingEligibility(ctx context.Context, detail *models.ApplicationDetail) error {
	if s.eligibility == nil {
		return nil
	}
	profile, err := s.students.GetProfileByID(ctx, detail.StudentID)
	if err != nil {
		return appErrors.Internal(err, "failed to load student profile")
	}
	scholarship, err := s.scholarships.GetByID(ctx, detail.ScholarshipID)
	if err != nil {
		return appErrors.Internal(err, "failed to load scholarship")
	}
	result, err := s.eligibility.ContinuingEligibility(ctx, profile, scholarship)
	if err != nil {
		return err
	}
	if !result.Eligible {
		return notEligible(result)
	}
	return nil
}

func canDisburse(actor *models.Actor) bool {
	return actor != nil && (actor.Role == models.RoleOSASStaff || actor.Role == models.RoleAdmin)
}
