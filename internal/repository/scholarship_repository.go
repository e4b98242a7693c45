package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/database"
)

const scholarshipColumns = `id, name, description, type, status, deadline, slots, amount, fund_source, created_at, updated_at`

// ScholarshipRepository manages the scholarship catalogue.
type ScholarshipRepository struct {
	db *sqlx.DB
}

// NewScholarshipRepository constructs the repository.
func NewScholarshipRepository(db *sqlx.DB) *ScholarshipRepository {
	return &ScholarshipRepository{db: db}
}

// GetByID returns one scholarship.
func (r *ScholarshipRepository) GetByID(ctx context.Context, id string) (*models.Scholarship, error) {
	const query = `SELECT ` + scholarshipColumns + ` FROM scholarships WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetByIDForUpdate locks the scholarship row for slot accounting.
func (r *ScholarshipRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Scholarship, error) {
	const query = `SELECT ` + scholarshipColumns + ` FROM scholarships WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, id)
}

func (r *ScholarshipRepository) get(ctx context.Context, query, id string) (*models.Scholarship, error) {
	var scholarship models.Scholarship
	if err := database.Conn(ctx, r.db).GetContext(ctx, &scholarship, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get scholarship: %w", err)
	}
	return &scholarship, nil
}

// List returns scholarships matching the filter with the total count.
func (r *ScholarshipRepository) List(ctx context.Context, filter models.ScholarshipFilter) ([]models.Scholarship, int, error) {
	baseQuery := `FROM scholarships WHERE 1=1`
	var conditions []string
	var args []interface{}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	conn := database.Conn(ctx, r.db)
	var items []models.Scholarship
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY deadline ASC, name ASC LIMIT %d OFFSET %d", scholarshipColumns, baseQuery, limit, offset)
	if err := conn.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list scholarships: %w", err)
	}
	var total int
	if err := conn.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count scholarships: %w", err)
	}
	return items, total, nil
}

// Create inserts a scholarship.
func (r *ScholarshipRepository) Create(ctx context.Context, scholarship *models.Scholarship) error {
	if scholarship.ID == "" {
		scholarship.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	scholarship.CreatedAt = now
	scholarship.UpdatedAt = now
	const query = `INSERT INTO scholarships (id, name, description, type, status, deadline, slots, amount, fund_source, created_at, updated_at)
VALUES (:id, :name, :description, :type, :status, :deadline, :slots, :amount, :fund_source, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, scholarship); err != nil {
		return fmt.Errorf("create scholarship: %w", err)
	}
	return nil
}

// Update rewrites the mutable catalogue fields. The type is fixed once created.
func (r *ScholarshipRepository) Update(ctx context.Context, scholarship *models.Scholarship) error {
	scholarship.UpdatedAt = time.Now().UTC()
	const query = `UPDATE scholarships SET name = :name, description = :description, status = :status, deadline = :deadline,
slots = :slots, amount = :amount, fund_source = :fund_source, updated_at = :updated_at WHERE id = :id`
	res, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, scholarship)
	if err != nil {
		return fmt.Errorf("update scholarship: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
