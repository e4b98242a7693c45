package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type scholarshipStore interface {
	GetByID(ctx context.Context, id string) (*models.Scholarship, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Scholarship, error)
	List(ctx context.Context, filter models.ScholarshipFilter) ([]models.Scholarship, int, error)
	Create(ctx context.Context, scholarship *models.Scholarship) error
	Update(ctx context.Context, scholarship *models.Scholarship) error
}

// ScholarshipRequest is the create/update payload for a catalogue entry.
type ScholarshipRequest struct {
	Name        string                   `json:"name" validate:"required,max=200"`
	Description string                   `json:"description"`
	Type        models.ScholarshipType   `json:"type" validate:"required"`
	Status      models.ScholarshipStatus `json:"status" validate:"omitempty,oneof=active inactive draft upcoming"`
	Deadline    time.Time                `json:"deadline" validate:"required"`
	Slots       int                      `json:"slots" validate:"min=0"`
	Amount      decimal.Decimal          `json:"amount"`
	FundSource  string                   `json:"fund_source" validate:"max=100"`
}

// ScholarshipList is a page of catalogue entries.
type ScholarshipList struct {
	Items []models.Scholarship `json:"items"`
	Total int                  `json:"total"`
}

// ScholarshipService manages the scholarship catalogue.
type ScholarshipService struct {
	tx        txRunner
	repo      scholarshipStore
	audit     auditLogger
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScholarshipService constructs the service. audit and cache may be nil.
func NewScholarshipService(tx txRunner, repo scholarshipStore, audit auditLogger, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *ScholarshipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if tx == nil {
		tx = noTx{}
	}
	return &ScholarshipService{tx: tx, repo: repo, audit: audit, cache: cache, validator: validate, logger: logger}
}

// Create adds a catalogue entry. Admins only.
func (s *ScholarshipService) Create(ctx context.Context, req ScholarshipRequest, actor *models.Actor) (*models.Scholarship, error) {
	if !isAdmin(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can manage scholarships")
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	scholarship := &models.Scholarship{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Type:        req.Type,
		Status:      req.Status,
		Deadline:    req.Deadline.UTC(),
		Slots:       req.Slots,
		Amount:      req.Amount,
		FundSource:  req.FundSource,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, scholarship); err != nil {
			return appErrors.Internal(err, "failed to create scholarship")
		}
		recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionScholarshipCreate, "scholarships", scholarship.ID, nil, scholarship)
		invalidateReportsAfterCommit(ctx, s.cache, s.logger)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scholarship, nil
}

// Update rewrites the mutable fields of an entry. The type cannot change once created.
func (s *ScholarshipService) Update(ctx context.Context, id string, req ScholarshipRequest, actor *models.Actor) (*models.Scholarship, error) {
	if !isAdmin(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can manage scholarships")
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	var updated *models.Scholarship
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if current.Type != req.Type {
			return appErrors.Clone(appErrors.ErrValidation, "scholarship type cannot be changed")
		}
		before := *current
		current.Name = strings.TrimSpace(req.Name)
		current.Description = strings.TrimSpace(req.Description)
		current.Status = req.Status
		current.Deadline = req.Deadline.UTC()
		current.Slots = req.Slots
		current.Amount = req.Amount
		current.FundSource = req.FundSource
		if err := s.repo.Update(ctx, current); err != nil {
			return appErrors.Internal(err, "failed to update scholarship")
		}
		recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionScholarshipUpdate, "scholarships", current.ID, before, current)
		invalidateReportsAfterCommit(ctx, s.cache, s.logger)
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetStatus opens or closes a scholarship for intake. Admins only.
func (s *ScholarshipService) SetStatus(ctx context.Context, id string, status models.ScholarshipStatus, actor *models.Actor) (*models.Scholarship, error) {
	if !isAdmin(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can manage scholarships")
	}
	switch status {
	case models.ScholarshipStatusActive, models.ScholarshipStatusInactive, models.ScholarshipStatusDraft, models.ScholarshipStatusUpcoming:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown scholarship status")
	}
	var updated *models.Scholarship
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == status {
			updated = current
			return nil
		}
		from := current.Status
		current.Status = status
		if err := s.repo.Update(ctx, current); err != nil {
			return appErrors.Internal(err, "failed to update scholarship status")
		}
		recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionScholarshipUpdate, "scholarships", current.ID,
			map[string]interface{}{"status": from}, map[string]interface{}{"status": status})
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Get returns one entry. Students cannot see draft or inactive entries.
func (s *ScholarshipService) Get(ctx context.Context, id string, actor *models.Actor) (*models.Scholarship, error) {
	scholarship, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scholarship not found")
		}
		return nil, appErrors.Internal(err, "failed to load scholarship")
	}
	if !visibleTo(actor, scholarship.Status) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "scholarship not found")
	}
	return scholarship, nil
}

// List pages through the catalogue. Students only see active and upcoming entries.
func (s *ScholarshipService) List(ctx context.Context, filter models.ScholarshipFilter, actor *models.Actor) (*ScholarshipList, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown scholarship type")
	}
	if actor == nil || !actor.Role.IsStaff() {
		if filter.Status == "" {
			filter.Status = models.ScholarshipStatusActive
		}
		if !visibleTo(actor, filter.Status) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "status filter not available")
		}
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list scholarships")
	}
	if items == nil {
		items = []models.Scholarship{}
	}
	return &ScholarshipList{Items: items, Total: total}, nil
}

func (s *ScholarshipService) validate(req *ScholarshipRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Invalid(err, "invalid scholarship payload")
	}
	if !req.Type.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown scholarship type")
	}
	if req.Amount.IsNegative() {
		return appErrors.Clone(appErrors.ErrValidation, "amount cannot be negative")
	}
	if req.Status == "" {
		req.Status = models.ScholarshipStatusDraft
	}
	req.FundSource = strings.TrimSpace(req.FundSource)
	if req.FundSource == "" {
		req.FundSource = DefaultFundSource(req.Type)
	}
	return nil
}

func (s *ScholarshipService) lock(ctx context.Context, id string) (*models.Scholarship, error) {
	scholarship, err := s.repo.GetByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scholarship not found")
		}
		return nil, appErrors.Internal(err, "failed to load scholarship")
	}
	return scholarship, nil
}

func isAdmin(actor *models.Actor) bool {
	return actor != nil && actor.Role == models.RoleAdmin
}

func visibleTo(actor *models.Actor, status models.ScholarshipStatus) bool {
	if actor != nil && actor.Role.IsStaff() {
		return true
	}
	return status == models.ScholarshipStatusActive || status == models.ScholarshipStatusUpcoming
}
