package storage

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("doc-1", "applications/stu/app/grade_report.pdf")
	require.NoError(t, err)

	claims, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "doc-1", claims.Subject)
	require.Equal(t, "applications/stu/app/grade_report.pdf", claims.Resource)
	require.WithinDuration(t, expiresAt, claims.ExpiresAt, time.Second)
}

func TestSignedURLSignerRejectsTamperingAndExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return now }

	token, _, err := signer.Generate("doc-1", "a/b.pdf")
	require.NoError(t, err)

	_, err = NewSignedURLSigner("other", time.Minute).Parse(token)
	require.ErrorIs(t, err, ErrTokenSignature)

	_, err = signer.Parse(strings.Replace(token, "doc-1", "doc-2", 1))
	require.ErrorIs(t, err, ErrTokenSignature)

	_, err = signer.Parse("garbage")
	require.ErrorIs(t, err, ErrTokenMalformed)

	now = now.Add(2 * time.Minute)
	_, err = signer.Parse(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	stored, err := store.SaveStream("applications/s1/a1/cor.pdf", bytes.NewBufferString("%PDF-1.4"), 1024)
	require.NoError(t, err)
	require.Equal(t, int64(8), stored.Size)

	file, err := store.Open(stored.Key)
	require.NoError(t, err)
	content, err := io.ReadAll(file)
	require.NoError(t, file.Close())
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(content))

	require.NoError(t, store.Delete(stored.Key))
	require.NoError(t, store.Delete(stored.Key))
	_, err = store.Open(stored.Key)
	require.Error(t, err)
}

func TestLocalStorageLimitsAndPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("big.bin", bytes.NewReader(make([]byte, 11)), 10)
	require.ErrorIs(t, err, ErrTooLarge)
	_, err = store.Open("big.bin")
	require.Error(t, err)

	_, err = store.SaveStream("../escape.pdf", bytes.NewBufferString("x"), 10)
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = store.Open("/etc/passwd")
	require.ErrorIs(t, err, ErrInvalidPath)
}
