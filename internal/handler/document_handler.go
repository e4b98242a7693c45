package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/service"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, upload service.DocumentUpload, actor *models.Actor) (*models.Document, error)
	VerifyDocument(ctx context.Context, req service.VerifyDocumentRequest, actor *models.Actor) (*models.Document, error)
	ListDocuments(ctx context.Context, applicationID string, actor *models.Actor) ([]models.Document, error)
	PendingQueue(ctx context.Context, actor *models.Actor, limit int) ([]models.Document, error)
	DownloadURL(ctx context.Context, documentID string, actor *models.Actor) (*service.DocumentDownload, error)
	Open(ctx context.Context, token string) (*os.File, *models.Document, error)
}

// DocumentHandler exposes requirement uploads and verification.
type DocumentHandler struct {
	service  documentService
	basePath string
}

// NewDocumentHandler constructs the handler. basePath prefixes generated
// download links, e.g. /api/v1.
func NewDocumentHandler(svc documentService, basePath string) *DocumentHandler {
	return &DocumentHandler{service: svc, basePath: basePath}
}

// DownloadLink is the payload returned for a signed document link.
type DownloadLink struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Upload godoc
// @Summary Upload a requirement document
// @Description Replaces a pending or rejected upload of the same type
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Application ID"
// @Param type formData string true "Document type"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /applications/{id}/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var form dto.UploadDocumentForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, appErrors.Invalid(err, "document type required"))
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Invalid(err, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read upload"))
		return
	}
	defer file.Close()

	doc, err := h.service.Upload(c.Request.Context(), service.DocumentUpload{
		ApplicationID: c.Param("id"),
		Type:          form.Type,
		FileName:      header.Filename,
		Size:          header.Size,
		Content:       file,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// List godoc
// @Summary List application documents
// @Tags Documents
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	docs, err := h.service.ListDocuments(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Pending godoc
// @Summary Verification queue
// @Description Pending documents routed to the caller's role
// @Tags Documents
// @Produce json
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /documents/pending [get]
func (h *DocumentHandler) Pending(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var query dto.PendingQueueQuery
	if !bindQuery(c, &query) {
		return
	}
	docs, err := h.service.PendingQueue(c.Request.Context(), actor, query.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	listJSON(c, docs, nil)
}

// Verify godoc
// @Summary Verify or reject a document
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.VerifyDocumentRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /documents/{id}/verify [patch]
func (h *DocumentHandler) Verify(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.VerifyDocumentRequest
	if !bindJSON(c, &req, "invalid verification payload") {
		return
	}
	doc, err := h.service.VerifyDocument(c.Request.Context(), service.VerifyDocumentRequest{
		DocumentID: c.Param("id"),
		Status:     req.Status,
		Remarks:    req.Remarks,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// DownloadURL godoc
// @Summary Issue a signed download link
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/download-url [get]
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	link, err := h.service.DownloadURL(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, DownloadLink{
		URL:       fmt.Sprintf("%s/documents/%s/file?token=%s", h.basePath, url.PathEscape(id), url.QueryEscape(link.Token)),
		Token:     link.Token,
		ExpiresAt: link.ExpiresAt,
	}, nil)
}

// Download godoc
// @Summary Download a document
// @Description Public route authorised by the signed token
// @Tags Documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /documents/{id}/file [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token required"))
		return
	}
	file, doc, err := h.service.Open(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()
	if doc.ID != c.Param("id") {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link"))
		return
	}

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to stat document"))
		return
	}
	response.AttachmentStream(c, doc.OriginalName, doc.MimeType, info.Size(), file)
}
