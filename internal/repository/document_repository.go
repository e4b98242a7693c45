package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/database"
)

const documentColumns = `id, application_id, type, original_name, file_path, mime_type, size_bytes, status, verifier_role, verified_by, verified_at, remarks, uploaded_by, created_at, updated_at`

// DocumentRepository persists requirement documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// GetByID returns a document.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	return r.get(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
}

// GetByIDForUpdate locks a document row.
func (r *DocumentRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Document, error) {
	return r.get(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id)
}

// GetByApplicationTypeForUpdate locks the current document of one checklist item.
func (r *DocumentRepository) GetByApplicationTypeForUpdate(ctx context.Context, applicationID string, docType models.DocumentType) (*models.Document, error) {
	return r.get(ctx, `SELECT `+documentColumns+` FROM documents WHERE application_id = $1 AND type = $2 FOR UPDATE`, applicationID, docType)
}

func (r *DocumentRepository) get(ctx context.Context, query string, args ...interface{}) (*models.Document, error) {
	var doc models.Document
	if err := database.Conn(ctx, r.db).GetContext(ctx, &doc, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// Create inserts a document.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	const query = `INSERT INTO documents (id, application_id, type, original_name, file_path, mime_type, size_bytes, status, verifier_role, verified_by, verified_at, remarks, uploaded_by, created_at, updated_at)
VALUES (:id, :application_id, :type, :original_name, :file_path, :mime_type, :size_bytes, :status, :verifier_role, :verified_by, :verified_at, :remarks, :uploaded_by, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// ReplaceFile points an existing document at a new upload and resets its verification.
func (r *DocumentRepository) ReplaceFile(ctx context.Context, doc *models.Document) error {
	const query = `UPDATE documents SET original_name = :original_name, file_path = :file_path, mime_type = :mime_type,
size_bytes = :size_bytes, status = :status, verified_by = NULL, verified_at = NULL, remarks = NULL,
uploaded_by = :uploaded_by, updated_at = :updated_at WHERE id = :id`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}

// UpdateVerification stores a verifier's decision.
func (r *DocumentRepository) UpdateVerification(ctx context.Context, doc *models.Document) error {
	const query = `UPDATE documents SET status = :status, verified_by = :verified_by, verified_at = :verified_at,
remarks = :remarks, updated_at = :updated_at WHERE id = :id`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("update document verification: %w", err)
	}
	return nil
}

// ListByApplication returns every document of an application.
func (r *DocumentRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE application_id = $1 ORDER BY created_at ASC`
	var docs []models.Document
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &docs, query, applicationID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// ListPendingByRole returns the verification queue of one office, oldest first.
func (r *DocumentRepository) ListPendingByRole(ctx context.Context, role models.UserRole, limit int) ([]models.Document, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT d.id, d.application_id, d.type, d.original_name, d.file_path, d.mime_type, d.size_bytes, d.status,
d.verifier_role, d.verified_by, d.verified_at, d.remarks, d.uploaded_by, d.created_at, d.updated_at
FROM documents d
JOIN scholarship_applications a ON a.id = d.application_id
WHERE d.verifier_role = $1 AND d.status = 'pending' AND a.status NOT IN ('approved', 'rejected', 'end')
ORDER BY d.updated_at ASC LIMIT $2`
	var docs []models.Document
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &docs, query, role, limit); err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	return docs, nil
}
