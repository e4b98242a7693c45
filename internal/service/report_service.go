package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/export"
)

const reportCachePrefix = "reports:"

// ExportFormat selects the rendering of an exported report.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

type reportStore interface {
	ApplicationsByStatus(ctx context.Context) ([]models.StatusCount, error)
	ApplicationsByType(ctx context.Context) ([]models.StatusCount, error)
	DocumentsByStatus(ctx context.Context) ([]models.StatusCount, error)
	InterviewStats(ctx context.Context) (*models.InterviewStats, error)
	StipendTotals(ctx context.Context, filter models.ReportFilter) (*repository.StipendTotals, error)
	Funds(ctx context.Context, filter models.ReportFilter) ([]models.FundUtilisation, error)
}

type reportCache interface {
	Remember(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func(ctx context.Context) (interface{}, error)) (interface{}, bool, error)
}

// ExportedReport is a rendered report ready for download.
type ExportedReport struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ReportService builds the dashboard rollup and its exports.
type ReportService struct {
	repo   reportStore
	cache  reportCache
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewReportService constructs the service. cache may be nil.
func NewReportService(repo reportStore, cache reportCache, ttl time.Duration, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:   repo,
		cache:  cache,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Summary returns the rollup for the filter, served from cache when possible.
func (s *ReportService) Summary(ctx context.Context, filter models.ReportFilter, actor *models.Actor) (*models.ScholarshipReport, error) {
	if actor == nil || !actor.Role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reports are available to staff only")
	}
	if filter.AcademicYear != "" {
		if err := ValidateAcademicYear(filter.AcademicYear); err != nil {
			return nil, err
		}
	}
	if filter.Semester != "" && !filter.Semester.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester must be first, second or summer")
	}
	if s.cache == nil {
		return s.build(ctx, filter)
	}

	var cached models.ScholarshipReport
	value, hit, err := s.cache.Remember(ctx, summaryCacheKey(filter), s.ttl, &cached, func(ctx context.Context) (interface{}, error) {
		return s.build(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("report summary served", zap.Bool("cache_hit", hit))
	report, ok := value.(*models.ScholarshipReport)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, "unexpected cached report payload")
	}
	return report, nil
}

// Export renders the summary as CSV or PDF.
func (s *ReportService) Export(ctx context.Context, filter models.ReportFilter, format ExportFormat, actor *models.Actor) (*ExportedReport, error) {
	format = ExportFormat(strings.ToLower(string(format)))
	if format != ExportCSV && format != ExportPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	summary, err := s.Summary(ctx, filter, actor)
	if err != nil {
		return nil, err
	}
	doc := SummaryDocument(summary)
	name := "scholarship-report"
	if filter.AcademicYear != "" {
		name += "-" + filter.AcademicYear
	}
	if filter.Semester != "" {
		name += "-" + string(filter.Semester)
	}

	switch format {
	case ExportPDF:
		content, err := s.pdf.Render(doc)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render pdf")
		}
		return &ExportedReport{FileName: name + ".pdf", ContentType: "application/pdf", Content: content}, nil
	default:
		content, err := s.csv.Render(doc)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render csv")
		}
		return &ExportedReport{FileName: name + ".csv", ContentType: "text/csv", Content: content}, nil
	}
}

func (s *ReportService) build(ctx context.Context, filter models.ReportFilter) (*models.ScholarshipReport, error) {
	wrap := func(err error, what string) error {
		return appErrors.Internal(err, "failed to load "+what)
	}
	byStatus, err := s.repo.ApplicationsByStatus(ctx)
	if err != nil {
		return nil, wrap(err, "application counts")
	}
	byType, err := s.repo.ApplicationsByType(ctx)
	if err != nil {
		return nil, wrap(err, "application types")
	}
	docs, err := s.repo.DocumentsByStatus(ctx)
	if err != nil {
		return nil, wrap(err, "document counts")
	}
	interviews, err := s.repo.InterviewStats(ctx)
	if err != nil {
		return nil, wrap(err, "interview stats")
	}
	stipends, err := s.repo.StipendTotals(ctx, filter)
	if err != nil {
		return nil, wrap(err, "stipend totals")
	}
	funds, err := s.repo.Funds(ctx, filter)
	if err != nil {
		return nil, wrap(err, "funds")
	}

	report := &models.ScholarshipReport{
		Filter:                filter,
		ApplicationsByStatus:  nonNilCounts(byStatus),
		ApplicationsByType:    nonNilCounts(byType),
		DocumentsByStatus:     nonNilCounts(docs),
		Interviews:            *interviews,
		StipendsReleasedCount: stipends.Count,
		StipendsReleasedTotal: stipends.Total,
		Funds:                 make([]models.FundUtilisation, 0, len(funds)),
		GeneratedAt:           s.now().UTC(),
	}
	var approved, decided int
	for _, row := range byStatus {
		report.TotalApplications += row.Count
		switch models.ApplicationStatus(row.Label) {
		case models.ApplicationApproved:
			approved += row.Count
			decided += row.Count
		case models.ApplicationRejected:
			decided += row.Count
		}
	}
	if decided > 0 {
		report.ApprovalRate = float64(approved) / float64(decided)
	}
	if interviews.Total > 0 {
		report.Interviews.NoShowRate = float64(interviews.NoShow) / float64(interviews.Total)
	}
	for _, fund := range funds {
		fund.Released = fund.AllocatedBudget.Sub(fund.RemainingBudget)
		if fund.AllocatedBudget.IsPositive() {
			fund.UtilisationRate = fund.Released.Div(fund.AllocatedBudget).InexactFloat64()
		}
		report.Funds = append(report.Funds, fund)
	}
	return report, nil
}

// SummaryDocument lays the rollup out as an exportable report.
func SummaryDocument(r *models.ScholarshipReport) export.Report {
	countRows := func(rows []models.StatusCount) [][]string {
		out := make([][]string, 0, len(rows))
		for _, row := range rows {
			out = append(out, []string{humanize(row.Label), strconv.Itoa(row.Count)})
		}
		return out
	}
	avg := "-"
	if r.Interviews.AverageScore != nil {
		avg = fmt.Sprintf("%.2f", *r.Interviews.AverageScore)
	}
	funds := make([][]string, 0, len(r.Funds))
	for _, f := range r.Funds {
		funds = append(funds, []string{
			f.FundSource, f.AcademicYear, string(f.Semester),
			f.AllocatedBudget.StringFixed(2), f.Released.StringFixed(2), f.RemainingBudget.StringFixed(2),
			fmt.Sprintf("%.1f%%", f.UtilisationRate*100),
		})
	}
	return export.Report{
		Title:       "Scholarship Program Summary",
		GeneratedAt: r.GeneratedAt,
		Sections: []export.Section{
			{
				Title:   "Overview",
				Headers: []string{"Metric", "Value"},
				Rows: [][]string{
					{"Total applications", strconv.Itoa(r.TotalApplications)},
					{"Approval rate", fmt.Sprintf("%.1f%%", r.ApprovalRate*100)},
					{"Stipends released", strconv.Itoa(r.StipendsReleasedCount)},
					{"Amount released", r.StipendsReleasedTotal.StringFixed(2)},
				},
			},
			{Title: "Applications by status", Headers: []string{"Status", "Count"}, Rows: countRows(r.ApplicationsByStatus)},
			{Title: "Applications by type", Headers: []string{"Type", "Count"}, Rows: countRows(r.ApplicationsByType)},
			{Title: "Documents by status", Headers: []string{"Status", "Count"}, Rows: countRows(r.DocumentsByStatus)},
			{
				Title:   "Interviews",
				Headers: []string{"Total", "Completed", "Cancelled", "No-show", "No-show rate", "Average score"},
				Rows: [][]string{{
					strconv.Itoa(r.Interviews.Total), strconv.Itoa(r.Interviews.Completed), strconv.Itoa(r.Interviews.Cancelled),
					strconv.Itoa(r.Interviews.NoShow), fmt.Sprintf("%.1f%%", r.Interviews.NoShowRate*100), avg,
				}},
			},
			{
				Title:   "Fund utilisation",
				Headers: []string{"Fund", "Academic year", "Semester", "Allocated", "Released", "Remaining", "Utilisation"},
				Rows:    funds,
			},
		},
	}
}

func summaryCacheKey(filter models.ReportFilter) string {
	year := filter.AcademicYear
	if year == "" {
		year = "all"
	}
	semester := string(filter.Semester)
	if semester == "" {
		semester = "all"
	}
	return reportCachePrefix + "summary:" + year + ":" + semester
}

func nonNilCounts(rows []models.StatusCount) []models.StatusCount {
	if rows == nil {
		return []models.StatusCount{}
	}
	return rows
}
