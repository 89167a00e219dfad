package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/casevault/backend/model"
)

// DB is the subset of pgxpool.Pool the stores depend on. pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// EvidenceStore persists evidence document rows. Chunks and embeddings live
// in the VectorStore; this store owns the document lifecycle.
type EvidenceStore struct {
	db DB
}

func NewEvidenceStore(db DB) *EvidenceStore {
	return &EvidenceStore{db: db}
}

const insertEvidenceSQL = `
INSERT INTO evidence_documents
    (id, case_id, owner_id, kind, filename, storage_key, mime_type, size_bytes, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// Create inserts a new evidence document, normally in status pending.
func (s *EvidenceStore) Create(ctx context.Context, doc *model.EvidenceDocument) error {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.db.Exec(ctx, insertEvidenceSQL,
		doc.ID, doc.CaseID, doc.OwnerID, string(doc.Kind), doc.Filename,
		doc.StorageKey, doc.MimeType, doc.SizeBytes, doc.Status,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evidence document: %w", err)
	}
	return nil
}

const getEvidenceSQL = `
SELECT id, case_id, owner_id, kind, filename, storage_key, mime_type, size_bytes, status, last_error, created_at, updated_at
FROM evidence_documents
WHERE id = $1`

// Get returns an evidence document by id, or nil when it does not exist.
func (s *EvidenceStore) Get(ctx context.Context, id string) (*model.EvidenceDocument, error) {
	row := s.db.QueryRow(ctx, getEvidenceSQL, id)

	doc, err := scanEvidence(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get evidence document: %w", err)
	}
	return doc, nil
}

// ListByCase returns all evidence documents of one case, owner scoped,
// newest first.
func (s *EvidenceStore) ListByCase(ctx context.Context, ownerID, caseID string) ([]*model.EvidenceDocument, error) {
	query, args, err := psql.
		Select("id", "case_id", "owner_id", "kind", "filename", "storage_key",
			"mime_type", "size_bytes", "status", "last_error", "created_at", "updated_at").
		From("evidence_documents").
		Where(sq.Eq{"owner_id": ownerID, "case_id": caseID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list evidence documents: %w", err)
	}
	defer rows.Close()

	var docs []*model.EvidenceDocument
	for rows.Next() {
		doc, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list evidence documents: %w", err)
	}
	return docs, nil
}

const claimProcessingSQL = `
UPDATE evidence_documents
SET status = $1, updated_at = now()
WHERE id = $2 AND status = $3`

// ClaimProcessing atomically flips a document from pending to processing.
// Returns false when another worker already claimed it (or it is not
// pending), so at most one ingestion run proceeds per document.
func (s *EvidenceStore) ClaimProcessing(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, claimProcessingSQL, model.StatusProcessing, id, model.StatusPending)
	if err != nil {
		return false, fmt.Errorf("claim evidence document: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const setStatusSQL = `
UPDATE evidence_documents
SET status = $1, last_error = $2, updated_at = now()
WHERE id = $3`

// SetStatus updates the processing status and error detail of a document.
func (s *EvidenceStore) SetStatus(ctx context.Context, id, status, lastError string) error {
	_, err := s.db.Exec(ctx, setStatusSQL, status, lastError, id)
	if err != nil {
		return fmt.Errorf("update evidence status: %w", err)
	}
	return nil
}

func scanEvidence(row pgx.Row) (*model.EvidenceDocument, error) {
	var doc model.EvidenceDocument
	var kind string
	var lastError *string
	err := row.Scan(&doc.ID, &doc.CaseID, &doc.OwnerID, &kind, &doc.Filename,
		&doc.StorageKey, &doc.MimeType, &doc.SizeBytes, &doc.Status,
		&lastError, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Kind = model.MediaKind(kind)
	if lastError != nil {
		doc.LastError = *lastError
	}
	return &doc, nil
}
