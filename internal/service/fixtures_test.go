package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
)

var (
	staffActor     = &models.Actor{UserID: "staff-1", Role: models.RoleOSASStaff}
	adminActor     = &models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	counselorActor = &models.Actor{UserID: "counselor-1", Role: models.RoleGuidanceCounselor}
	coachActor     = &models.Actor{UserID: "coach-1", Role: models.RoleCoachAdviser}
	studentActor   = &models.Actor{UserID: "user-1", Role: models.RoleStudent}
	otherStudent   = &models.Actor{UserID: "user-2", Role: models.RoleStudent}
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newDetail(id string, status models.ApplicationStatus, t models.ScholarshipType) *models.ApplicationDetail {
	return &models.ApplicationDetail{
		ScholarshipApplication: models.ScholarshipApplication{
			ID:             id,
			StudentID:      "stu-1",
			ScholarshipID:  "sch-1",
			Status:         status,
			CurrentStep:    status.Step(),
			AmountReceived: decimal.Zero,
		},
		ScholarshipName: "Dean's List Grant",
		ScholarshipType: t,
		FundSource:      DefaultFundSource(t),
		StudentUserID:   "user-1",
	}
}

// memApplications is an in-memory application store shared by the service tests.
type memApplications struct {
	mu       sync.Mutex
	items    map[string]*models.ApplicationDetail
	history  []models.ApplicationStatusHistory
	created  []models.ScholarshipApplication
	open     map[string]bool
	approved map[string]int
	received map[string]decimal.Decimal
	listErr  error
}

func newMemApplications(details ...*models.ApplicationDetail) *memApplications {
	m := &memApplications{
		items:    map[string]*models.ApplicationDetail{},
		open:     map[string]bool{},
		approved: map[string]int{},
		received: map[string]decimal.Decimal{},
	}
	for _, d := range details {
		m.items[d.ID] = d
	}
	return m
}

func (m *memApplications) get(id string) (*models.ApplicationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *memApplications) GetDetail(_ context.Context, id string) (*models.ApplicationDetail, error) {
	return m.get(id)
}

func (m *memApplications) GetDetailForUpdate(_ context.Context, id string) (*models.ApplicationDetail, error) {
	return m.get(id)
}

func (m *memApplications) UpdateStatus(_ context.Context, p repository.ApplicationStatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[p.ID]
	if !ok {
		return sql.ErrNoRows
	}
	d.Status = p.Status
	d.CurrentStep = p.CurrentStep
	d.Remarks = p.Remarks
	d.SubmittedAt = p.SubmittedAt
	d.ReviewedBy = p.ReviewedBy
	d.ReviewedAt = p.ReviewedAt
	d.UpdatedAt = p.UpdatedAt
	return nil
}

func (m *memApplications) InsertHistory(_ context.Context, entry *models.ApplicationStatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *entry)
	return nil
}

func (m *memApplications) ListHistory(_ context.Context, id string) ([]models.ApplicationStatusHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ApplicationStatusHistory
	for _, h := range m.history {
		if h.ApplicationID == id {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memApplications) Create(_ context.Context, app *models.ScholarshipApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *app)
	m.items[app.ID] = &models.ApplicationDetail{ScholarshipApplication: *app, StudentUserID: "user-1"}
	return nil
}

func (m *memApplications) List(_ context.Context, f models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ApplicationDetail
	for _, d := range m.items {
		if f.StudentID != "" && d.StudentID != f.StudentID {
			continue
		}
		if f.ScholarshipID != "" && d.ScholarshipID != f.ScholarshipID {
			continue
		}
		if len(f.Status) > 0 && !containsStatus(f.Status, d.Status) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memApplications) ExistsOpen(_ context.Context, studentID, scholarshipID string) (bool, error) {
	return m.open[studentID+"/"+scholarshipID], nil
}

func (m *memApplications) CountApproved(_ context.Context, scholarshipID string) (int, error) {
	return m.approved[scholarshipID], nil
}

func (m *memApplications) AddAmountReceived(_ context.Context, id string, amount decimal.Decimal, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received[id] = m.received[id].Add(amount)
	return nil
}

func (m *memApplications) status(id string) models.ApplicationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Status
}

func containsStatus(list []models.ApplicationStatus, s models.ApplicationStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// memDocuments is an in-memory document store.
type memDocuments struct {
	mu    sync.Mutex
	items map[string]*models.Document
}

func newMemDocuments(docs ...models.Document) *memDocuments {
	m := &memDocuments{items: map[string]*models.Document{}}
	for i := range docs {
		d := docs[i]
		m.items[d.ID] = &d
	}
	return m
}

func (m *memDocuments) GetByID(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *memDocuments) GetByIDForUpdate(ctx context.Context, id string) (*models.Document, error) {
	return m.GetByID(ctx, id)
}

func (m *memDocuments) GetByApplicationTypeForUpdate(_ context.Context, applicationID string, t models.DocumentType) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.items {
		if d.ApplicationID == applicationID && d.Type == t {
			cp := *d
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memDocuments) Create(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.items[doc.ID] = &cp
	return nil
}

func (m *memDocuments) ReplaceFile(ctx context.Context, doc *models.Document) error {
	return m.Create(ctx, doc)
}

func (m *memDocuments) UpdateVerification(ctx context.Context, doc *models.Document) error {
	return m.Create(ctx, doc)
}

func (m *memDocuments) ListByApplication(_ context.Context, applicationID string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.items {
		if d.ApplicationID == applicationID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDocuments) ListPendingByRole(_ context.Context, role models.UserRole, limit int) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.items {
		if d.Status == models.DocumentPending && d.VerifierRole == role {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notification models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *recordingNotifier) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.UserID)
	}
	return out
}

// recordingAudit captures audit rows.
type recordingAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *recordingAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

// recordingInvalidator counts cache invalidations.
type recordingInvalidator struct {
	patterns []string
}

func (c *recordingInvalidator) Invalidate(_ context.Context, pattern string) error {
	c.patterns = append(c.patterns, pattern)
	return nil
}

// memScholarships serves scholarships by id.
type memScholarships struct {
	items map[string]*models.Scholarship
}

func newMemScholarships(items ...models.Scholarship) *memScholarships {
	m := &memScholarships{items: map[string]*models.Scholarship{}}
	for i := range items {
		s := items[i]
		m.items[s.ID] = &s
	}
	return m
}

func (m *memScholarships) GetByID(_ context.Context, id string) (*models.Scholarship, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memScholarships) GetByIDForUpdate(ctx context.Context, id string) (*models.Scholarship, error) {
	return m.GetByID(ctx, id)
}

func (m *memScholarships) List(_ context.Context, f models.ScholarshipFilter) ([]models.Scholarship, int, error) {
	var out []models.Scholarship
	for _, s := range m.items {
		if f.Type != "" && s.Type != f.Type {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memScholarships) Create(_ context.Context, s *models.Scholarship) error {
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *memScholarships) Update(_ context.Context, s *models.Scholarship) error {
	if _, ok := m.items[s.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

// memProfiles serves student profiles by id and user id.
type memProfiles struct {
	items map[string]*models.StudentProfile
}

func newMemProfiles(items ...models.StudentProfile) *memProfiles {
	m := &memProfiles{items: map[string]*models.StudentProfile{}}
	for i := range items {
		p := items[i]
		m.items[p.ID] = &p
	}
	return m
}

func (m *memProfiles) GetProfileByID(_ context.Context, id string) (*models.StudentProfile, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) GetProfileByUserID(_ context.Context, userID string) (*models.StudentProfile, error) {
	for _, p := range m.items {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}
