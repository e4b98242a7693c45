package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/storage"
)

const mimeSniffBytes = 3072

type documentStore interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Document, error)
	GetByApplicationTypeForUpdate(ctx context.Context, applicationID string, docType models.DocumentType) (*models.Document, error)
	Create(ctx context.Context, doc *models.Document) error
	ReplaceFile(ctx context.Context, doc *models.Document) error
	UpdateVerification(ctx context.Context, doc *models.Document) error
	ListByApplication(ctx context.Context, applicationID string) ([]models.Document, error)
	ListPendingByRole(ctx context.Context, role models.UserRole, limit int) ([]models.Document, error)
}

type applicationDetailReader interface {
	GetDetail(ctx context.Context, id string) (*models.ApplicationDetail, error)
}

type documentFileStorage interface {
	SaveStream(key string, r io.Reader, limit int64) (*storage.StoredFile, error)
	Open(key string) (*os.File, error)
	Delete(key string) error
}

type documentURLSigner interface {
	Generate(subject, resource string) (string, time.Time, error)
	Parse(token string) (*storage.SignedClaims, error)
}

type documentEventPublisher interface {
	PublishDocument(ctx context.Context, event DocumentEvent) error
}

// DocumentServiceConfig carries upload limits.
type DocumentServiceConfig struct {
	MaxFileSizeBytes  int64
	AllowedMIMEs      []string
	AllowedExtensions []string
}

// DocumentUpload is a file submitted for one checklist item.
type DocumentUpload struct {
	ApplicationID string
	Type          models.DocumentType
	FileName      string
	Size          int64
	Content       io.Reader
}

// VerifyDocumentRequest records a verifier's decision.
type VerifyDocumentRequest struct {
	DocumentID string
	Status     models.DocumentStatus
	Remarks    string
}

// DocumentDownload is a signed, time-limited link to a document.
type DocumentDownload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DocumentService manages requirement uploads, verification and completeness.
type DocumentService struct {
	tx           txRunner
	documents    documentStore
	applications applicationDetailReader
	files        documentFileStorage
	signer       documentURLSigner
	events       documentEventPublisher
	audit        auditLogger
	notifier     Notifier
	logger       *zap.Logger
	cfg          DocumentServiceConfig
	now          func() time.Time
}

// NewDocumentService constructs the service.
func NewDocumentService(
	tx txRunner,
	documents documentStore,
	applications applicationDetailReader,
	files documentFileStorage,
	signer documentURLSigner,
	events documentEventPublisher,
	audit auditLogger,
	notifier Notifier,
	logger *zap.Logger,
	cfg DocumentServiceConfig,
) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tx == nil {
		tx = noTx{}
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 5 * 1024 * 1024
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".pdf", ".jpg", ".jpeg", ".png"}
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	return &DocumentService{
		tx:           tx,
		documents:    documents,
		applications: applications,
		files:        files,
		signer:       signer,
		events:       events,
		audit:        audit,
		notifier:     notifier,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Upload stores a requirement file and creates or replaces the checklist entry.
// A verified document cannot be replaced.
func (s *DocumentService) Upload(ctx context.Context, upload DocumentUpload, actor *models.Actor) (*models.Document, error) {
	detail, err := s.loadApplication(ctx, upload.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !ownsApplication(actor, detail) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the applicant may upload documents")
	}
	if detail.Status.Finalized() {
		return nil, appErrors.Clone(appErrors.ErrFinalized, fmt.Sprintf("application is already %s", detail.Status))
	}
	verifierRole, ok := RequiredDocumentMap(detail.ScholarshipType)[upload.Type]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is not required for %s", upload.Type, detail.ScholarshipType))
	}
	if upload.Content == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSizeBytes {
		return nil, s.tooLarge()
	}
	ext := strings.ToLower(filepath.Ext(upload.FileName))
	if !containsFold(s.cfg.AllowedExtensions, ext) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file extension %q is not allowed", ext))
	}

	header := make([]byte, mimeSniffBytes)
	n, err := io.ReadFull(upload.Content, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Internal(err, "failed to read upload")
	}
	if n == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	detected := mimetype.Detect(header[:n])
	if !s.mimeAllowed(detected) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", detected.String()))
	}

	now := s.now().UTC()
	key := fmt.Sprintf("applications/%s/%s/%s_%d_%s%s", detail.StudentID, detail.ID, upload.Type, now.Unix(), uuid.NewString()[:8], ext)
	stored, err := s.files.SaveStream(key, io.MultiReader(bytes.NewReader(header[:n]), upload.Content), s.cfg.MaxFileSizeBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, s.tooLarge()
		}
		return nil, appErrors.Internal(err, "failed to store document")
	}

	var result *models.Document
	var replacedPath string
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		existing, err := s.documents.GetByApplicationTypeForUpdate(txCtx, detail.ID, upload.Type)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Internal(err, "failed to load document")
		}
		doc := &models.Document{
			ApplicationID: detail.ID,
			Type:          upload.Type,
			OriginalName:  filepath.Base(upload.FileName),
			FilePath:      stored.Key,
			MimeType:      detected.String(),
			SizeBytes:     stored.Size,
			Status:        models.DocumentPending,
			VerifierRole:  verifierRole,
			UploadedBy:    actor.UserID,
			UpdatedAt:     now,
		}
		if existing != nil {
			if existing.Status == models.DocumentVerified {
				return appErrors.Clone(appErrors.ErrConflict, "document is already verified and cannot be replaced")
			}
			doc.ID = existing.ID
			doc.CreatedAt = existing.CreatedAt
			if err := s.documents.ReplaceFile(txCtx, doc); err != nil {
				return appErrors.Internal(err, "failed to replace document")
			}
			replacedPath = existing.FilePath
		} else {
			doc.ID = uuid.NewString()
			doc.CreatedAt = now
			if err := s.documents.Create(txCtx, doc); err != nil {
				return appErrors.Internal(err, "failed to create document")
			}
		}
		if s.events != nil {
			if err := s.events.PublishDocument(txCtx, DocumentEvent{
				Kind:          DocumentEventUploaded,
				DocumentID:    doc.ID,
				ApplicationID: doc.ApplicationID,
				DocumentType:  doc.Type,
				Status:        doc.Status,
				Actor:         actor,
			}); err != nil {
				return err
			}
		}
		recordAudit(txCtx, s.audit, s.logger, actor, models.AuditActionDocumentUpload, "document", doc.ID, nil,
			map[string]interface{}{"type": doc.Type, "size_bytes": doc.SizeBytes, "replaced": existing != nil})
		result = doc
		return nil
	})
	if err != nil {
		if delErr := s.files.Delete(stored.Key); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("key", stored.Key), zap.Error(delErr))
		}
		return nil, err
	}
	if replacedPath != "" && replacedPath != stored.Key {
		if err := s.files.Delete(replacedPath); err != nil {
			s.logger.Warn("failed to remove replaced document", zap.String("key", replacedPath), zap.Error(err))
		}
	}
	return result, nil
}

// VerifyDocument applies a verifier decision. Re-applying the current status is a no-op
// and a verified document is final.
func (s *DocumentService) VerifyDocument(ctx context.Context, req VerifyDocumentRequest, actor *models.Actor) (*models.Document, error) {
	if req.Status != models.DocumentVerified && req.Status != models.DocumentRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be verified or rejected")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	var result *models.Document
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		doc, err := s.documents.GetByIDForUpdate(txCtx, req.DocumentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "document not found")
			}
			return appErrors.Internal(err, "failed to load document")
		}
		if actor.Role != doc.VerifierRole {
			return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s documents are verified by %s", doc.Type, doc.VerifierRole))
		}
		detail, err := s.loadApplication(txCtx, doc.ApplicationID)
		if err != nil {
			return err
		}
		if detail.Status.Finalized() {
			return appErrors.Clone(appErrors.ErrFinalized, fmt.Sprintf("application is already %s", detail.Status))
		}
		result = doc
		if doc.Status == req.Status {
			return nil
		}
		if doc.Status == models.DocumentVerified {
			return appErrors.Clone(appErrors.ErrConflict, "document is already verified and its decision cannot change")
		}

		previous := doc.Status
		now := s.now().UTC()
		verifier := actor.UserID
		doc.Status = req.Status
		doc.VerifiedBy = &verifier
		doc.VerifiedAt = &now
		doc.Remarks = trimmedPtr(req.Remarks)
		doc.UpdatedAt = now
		if err := s.documents.UpdateVerification(txCtx, doc); err != nil {
			return appErrors.Internal(err, "failed to update document")
		}
		if s.events != nil {
			if err := s.events.PublishDocument(txCtx, DocumentEvent{
				Kind:          DocumentEventVerified,
				DocumentID:    doc.ID,
				ApplicationID: doc.ApplicationID,
				DocumentType:  doc.Type,
				Status:        doc.Status,
				Actor:         actor,
			}); err != nil {
				return err
			}
		}
		recordAudit(txCtx, s.audit, s.logger, actor, models.AuditActionDocumentVerify, "document", doc.ID,
			map[string]string{"status": string(previous)}, map[string]string{"status": string(doc.Status)})

		message := fmt.Sprintf("Your %s was verified.", humanize(string(doc.Type)))
		if doc.Status == models.DocumentRejected {
			message = fmt.Sprintf("Your %s was rejected. Please upload a corrected copy.", humanize(string(doc.Type)))
			if doc.Remarks != nil {
				message += " Remarks: " + *doc.Remarks
			}
		}
		notifyAfterCommit(txCtx, s.notifier, models.Notification{
			UserID:        detail.StudentUserID,
			Title:         "Document " + string(doc.Status),
			Message:       message,
			Type:          models.NotificationDocument,
			Data:          map[string]interface{}{"document_type": doc.Type, "status": doc.Status},
			RelatedEntity: &models.RelatedEntity{Type: "document", ID: doc.ID},
			CreatedAt:     now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckDocumentCompleteness summarises the checklist of an application.
func (s *DocumentService) CheckDocumentCompleteness(ctx context.Context, applicationID string, actor *models.Actor) (*models.DocumentCompleteness, error) {
	detail, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !canViewApplication(actor, detail) {
		return nil, appErrors.ErrForbidden
	}
	docs, err := s.documents.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load documents")
	}
	completeness := ComputeCompleteness(detail.ScholarshipType, docs)
	return &completeness, nil
}

// ListDocuments returns the documents uploaded for an application.
func (s *DocumentService) ListDocuments(ctx context.Context, applicationID string, actor *models.Actor) ([]models.Document, error) {
	detail, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !canViewApplication(actor, detail) {
		return nil, appErrors.ErrForbidden
	}
	docs, err := s.documents.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load documents")
	}
	return docs, nil
}

// PendingQueue returns the documents awaiting the actor's office, oldest first.
func (s *DocumentService) PendingQueue(ctx context.Context, actor *models.Actor, limit int) ([]models.Document, error) {
	if actor == nil || !actor.Role.IsStaff() || actor.Role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only verifying offices have a document queue")
	}
	docs, err := s.documents.ListPendingByRole(ctx, actor.Role, limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load pending documents")
	}
	return docs, nil
}

// DownloadURL issues a signed token for reading a document.
func (s *DocumentService) DownloadURL(ctx context.Context, documentID string, actor *models.Actor) (*DocumentDownload, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Internal(err, "failed to load document")
	}
	detail, err := s.loadApplication(ctx, doc.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !canViewApplication(actor, detail) {
		return nil, appErrors.ErrForbidden
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.FilePath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign download")
	}
	return &DocumentDownload{Token: token, ExpiresAt: expiresAt}, nil
}

// Open resolves a signed token to the stored file. The caller closes the file.
func (s *DocumentService) Open(ctx context.Context, token string) (*os.File, *models.Document, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	doc, err := s.documents.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, nil, appErrors.Internal(err, "failed to load document")
	}
	if doc.FilePath != claims.Resource {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document has been replaced")
	}
	file, err := s.files.Open(doc.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "document file missing")
	}
	return file, doc, nil
}

func (s *DocumentService) loadApplication(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, err := s.applications.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	return detail, nil
}

func (s *DocumentService) mimeAllowed(detected *mimetype.MIME) bool {
	for _, allowed := range s.cfg.AllowedMIMEs {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

func (s *DocumentService) tooLarge() error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d MB limit", s.cfg.MaxFileSizeBytes/(1024*1024)))
}

// ComputeCompleteness evaluates uploaded documents against the checklist of a
// scholarship type. Rejected documents count as uploaded and are reported in
// RejectedDocuments until replaced.
func ComputeCompleteness(t models.ScholarshipType, docs []models.Document) models.DocumentCompleteness {
	required := RequiredDocuments(t)
	byType := make(map[models.DocumentType]models.Document, len(docs))
	for _, doc := range docs {
		byType[doc.Type] = doc
	}

	result := models.DocumentCompleteness{
		RequiredCount:     len(required),
		MissingDocuments:  []models.DocumentType{},
		PendingDocuments:  []models.DocumentType{},
		RejectedDocuments: []models.DocumentType{},
	}
	for _, req := range required {
		doc, ok := byType[req.Type]
		if !ok {
			result.MissingDocuments = append(result.MissingDocuments, req.Type)
			continue
		}
		result.UploadedCount++
		switch doc.Status {
		case models.DocumentVerified:
			result.VerifiedCount++
		case models.DocumentRejected:
			result.RejectedDocuments = append(result.RejectedDocuments, req.Type)
		default:
			result.PendingDocuments = append(result.PendingDocuments, req.Type)
		}
	}

	result.Complete = result.RequiredCount > 0 && result.VerifiedCount == result.RequiredCount
	switch {
	case result.UploadedCount < result.RequiredCount:
		result.RecommendedStatus = models.ApplicationIncomplete
	case result.Complete:
		result.RecommendedStatus = models.ApplicationVerified
	default:
		result.RecommendedStatus = models.ApplicationUnderVerification
	}
	return result
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}
