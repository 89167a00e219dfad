package service

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casevault/backend/model"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var evidenceColumns = []string{
	"id", "case_id", "owner_id", "kind", "filename", "storage_key",
	"mime_type", "size_bytes", "status", "last_error", "created_at", "updated_at",
}

func TestEvidenceStore_Create(t *testing.T) {
	mock := newMockPool(t)
	store := NewEvidenceStore(mock)

	doc := &model.EvidenceDocument{
		ID:         "ev-1",
		CaseID:     "case-1",
		OwnerID:    "user-1",
		Kind:       model.MediaDocument,
		Filename:   "lease.pdf",
		StorageKey: "user-1/case-1/ev-1/lease.pdf",
		MimeType:   "application/pdf",
		SizeBytes:  2048,
		Status:     model.StatusPending,
	}

	mock.ExpectExec("INSERT INTO evidence_documents").
		WithArgs(doc.ID, doc.CaseID, doc.OwnerID, "document", doc.Filename,
			doc.StorageKey, doc.MimeType, doc.SizeBytes, doc.Status,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Create(context.Background(), doc)
	require.NoError(t, err)
	assert.False(t, doc.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceStore_Get(t *testing.T) {
	mock := newMockPool(t)
	store := NewEvidenceStore(mock)

	now := time.Now()
	lastErr := "ocr: engine crashed"
	mock.ExpectQuery("SELECT (.+) FROM evidence_documents").
		WithArgs("ev-1").
		WillReturnRows(pgxmock.NewRows(evidenceColumns).
			AddRow("ev-1", "case-1", "user-1", "image", "scan.png", "key",
				"image/png", int64(512), model.StatusFailed, &lastErr, now, now))

	doc, err := store.Get(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, model.MediaImage, doc.Kind)
	assert.Equal(t, model.StatusFailed, doc.Status)
	assert.Equal(t, lastErr, doc.LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceStore_Get_NotFound(t *testing.T) {
	mock := newMockPool(t)
	store := NewEvidenceStore(mock)

	mock.ExpectQuery("SELECT (.+) FROM evidence_documents").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(evidenceColumns))

	doc, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, doc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceStore_ListByCase(t *testing.T) {
	mock := newMockPool(t)
	store := NewEvidenceStore(mock)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM evidence_documents").
		WithArgs("user-1", "case-1").
		WillReturnRows(pgxmock.NewRows(evidenceColumns).
			AddRow("ev-2", "case-1", "user-1", "document", "b.pdf", "k2",
				"application/pdf", int64(10), model.StatusReady, nil, now, now).
			AddRow("ev-1", "case-1", "user-1", "document", "a.pdf", "k1",
				"application/pdf", int64(20), model.StatusPending, nil, now, now))

	docs, err := store.ListByCase(context.Background(), "user-1", "case-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "ev-2", docs[0].ID)
	assert.Empty(t, docs[0].LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceStore_ClaimProcessing(t *testing.T) {
	mock := newMockPool(t)
	store := NewEvidenceStore(mock)

	mock.ExpectExec("UPDATE evidence_documents").
		WithArgs(model.StatusProcessing, "ev-1", model.StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	claimed, err := store.ClaimProcessing(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceStore_ClaimProcessing_AlreadyClaimed(t *testing.T) {
	mock := newMockPool(t)
	store := NewEvidenceStore(mock)

	mock.ExpectExec("UPDATE evidence_documents").
		WithArgs(model.StatusProcessing, "ev-1", model.StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	claimed, err := store.ClaimProcessing(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceStore_SetStatus(t *testing.T) {
	mock := newMockPool(t)
	store := NewEvidenceStore(mock)

	mock.ExpectExec("UPDATE evidence_documents").
		WithArgs(model.StatusFailed, "no text extracted", "ev-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.SetStatus(context.Background(), "ev-1", model.StatusFailed, "no text extracted")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
