package models

import "time"

// DocumentType names a requirement on a scholarship checklist.
type DocumentType string

const (
	DocumentCertificateOfRegistration DocumentType = "certificate_of_registration"
	DocumentGradeReport               DocumentType = "grade_report"
	DocumentGoodMoral                 DocumentType = "good_moral_certificate"
	DocumentCertificateOfMembership   DocumentType = "certificate_of_membership"
	DocumentRecommendationLetter      DocumentType = "recommendation_letter"
	DocumentCertificateOfIndigency    DocumentType = "certificate_of_indigency"
)

// DocumentStatus tracks verification of an uploaded requirement.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentVerified DocumentStatus = "verified"
	DocumentRejected DocumentStatus = "rejected"
)

// Document is an uploaded requirement belonging to an application.
type Document struct {
	ID            string         `db:"id" json:"id"`
	ApplicationID string         `db:"application_id" json:"application_id"`
	Type          DocumentType   `db:"type" json:"type"`
	OriginalName  string         `db:"original_name" json:"original_name"`
	FilePath      string         `db:"file_path" json:"-"`
	MimeType      string         `db:"mime_type" json:"mime_type"`
	SizeBytes     int64          `db:"size_bytes" json:"size_bytes"`
	Status        DocumentStatus `db:"status" json:"status"`
	VerifierRole  UserRole       `db:"verifier_role" json:"verifier_role"`
	VerifiedBy    *string        `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt    *time.Time     `db:"verified_at" json:"verified_at,omitempty"`
	Remarks       *string        `db:"remarks" json:"remarks,omitempty"`
	UploadedBy    string         `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// DocumentCompleteness summarises an application's checklist.
type DocumentCompleteness struct {
	RequiredCount     int               `json:"required_count"`
	UploadedCount     int               `json:"uploaded_count"`
	VerifiedCount     int               `json:"verified_count"`
	MissingDocuments  []DocumentType    `json:"missing_documents"`
	PendingDocuments  []DocumentType    `json:"pending_documents"`
	RejectedDocuments []DocumentType    `json:"rejected_documents"`
	Complete          bool              `json:"complete"`
	RecommendedStatus ApplicationStatus `json:"recommended_status"`
}
