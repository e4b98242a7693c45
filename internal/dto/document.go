package dto

import "github.com/noah-isme/scholarship-api/internal/models"

// UploadDocumentForm is the multipart form of POST /applications/:id/documents.
// The file itself travels in the "file" part.
type UploadDocumentForm struct {
	Type models.DocumentType `form:"type" binding:"required"`
}

// VerifyDocumentRequest records a verifier decision.
type VerifyDocumentRequest struct {
	Status  models.DocumentStatus `json:"status" binding:"required,oneof=verified rejected"`
	Remarks string                `json:"remarks" binding:"max=1000"`
}

// PendingQueueQuery limits the verification queue.
type PendingQueueQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}
