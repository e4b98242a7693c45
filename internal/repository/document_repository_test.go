package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
)

var documentRowColumns = []string{"id", "application_id", "type", "original_name", "file_path", "mime_type", "size_bytes", "status",
	"verifier_role", "verified_by", "verified_at", "remarks", "uploaded_by", "created_at", "updated_at"}

func TestDocumentRepositoryGetByApplicationType(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE application_id = $1 AND type = $2 FOR UPDATE")).
		WithArgs("app-1", models.DocumentGoodMoral).
		WillReturnRows(sqlmock.NewRows(documentRowColumns).AddRow("doc-1", "app-1", string(models.DocumentGoodMoral), "gm.pdf",
			"app-1/good_moral.pdf", "application/pdf", 2048, string(models.DocumentPending), string(models.RoleGuidanceCounselor),
			nil, nil, nil, "user-1", now, now))

	doc, err := repo.GetByApplicationTypeForUpdate(context.Background(), "app-1", models.DocumentGoodMoral)
	require.NoError(t, err)
	assert.Equal(t, models.RoleGuidanceCounselor, doc.VerifierRole)
	assert.Equal(t, int64(2048), doc.SizeBytes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery("FROM documents WHERE id").WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDocumentRepositoryReplaceFileClearsVerification(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("verified_by = NULL, verified_at = NULL, remarks = NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ReplaceFile(context.Background(), &models.Document{ID: "doc-1", OriginalName: "new.pdf", Status: models.DocumentPending, UpdatedAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryListPendingByRole(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE d.verifier_role = $1 AND d.status = 'pending'")).
		WithArgs(models.RoleCoachAdviser, 50).
		WillReturnRows(sqlmock.NewRows(documentRowColumns).AddRow("doc-2", "app-3", string(models.DocumentCertificateOfMembership), "m.pdf",
			"app-3/membership.pdf", "application/pdf", 100, string(models.DocumentPending), string(models.RoleCoachAdviser),
			nil, nil, nil, "user-3", now, now))

	docs, err := repo.ListPendingByRole(context.Background(), models.RoleCoachAdviser, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, models.DocumentCertificateOfMembership, docs[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}
