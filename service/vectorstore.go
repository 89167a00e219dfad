package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/casevault/backend/model"
)

// VectorStore persists chunk vectors and answers ownership-scoped
// nearest-neighbor queries against pgvector.
type VectorStore struct {
	db DB
}

func NewVectorStore(db DB) *VectorStore {
	return &VectorStore{db: db}
}

// searchSQL enforces the ownership filter at the query boundary: rows only
// come back when owner AND case match AND the owning document is ready.
// Evidence still pending, processing or failed is invisible to search even
// if embeddings exist for it.
const searchSQL = `
SELECT c.evidence_id, c.content, emb.embedding <=> $1 AS distance
FROM embeddings emb
JOIN text_chunks c ON c.id = emb.chunk_id
JOIN evidence_documents d ON d.id = c.evidence_id
WHERE d.owner_id = $2 AND d.case_id = $3 AND d.status = $4
ORDER BY distance
LIMIT $5`

// Search returns the chunks closest to the query vector within one owner's
// case, ascending by distance.
func (s *VectorStore) Search(ctx context.Context, ownerID, caseID string, queryVector []float32, limit int) ([]model.SearchHit, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.Query(ctx, searchSQL,
		pgvector.NewVector(queryVector), ownerID, caseID, model.StatusReady, limit)
	if err != nil {
		return nil, &DependencyError{Dependency: "vector search", Err: err}
	}
	defer rows.Close()

	var hits []model.SearchHit
	for rows.Next() {
		var hit model.SearchHit
		if err := rows.Scan(&hit.EvidenceID, &hit.ChunkContent, &hit.Distance); err != nil {
			return nil, &DependencyError{Dependency: "vector search", Err: err}
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, &DependencyError{Dependency: "vector search", Err: err}
	}
	return hits, nil
}

const deleteChunksSQL = `DELETE FROM text_chunks WHERE evidence_id = $1`

const insertChunkSQL = `
INSERT INTO text_chunks (id, evidence_id, chunk_index, content, token_count)
VALUES ($1, $2, $3, $4, $5)`

const insertEmbeddingSQL = `
INSERT INTO embeddings (id, chunk_id, embedding)
VALUES ($1, $2, $3)`

const markReadySQL = `
UPDATE evidence_documents
SET status = $1, last_error = '', updated_at = now()
WHERE id = $2`

// ReplaceChunks replaces a document's chunks and embeddings and marks it
// ready, all in one transaction. On any failure the transaction rolls back,
// leaving the document's previous chunk and embedding state untouched — the
// chunk count and embedding count are equal whenever the document is ready.
func (s *VectorStore) ReplaceChunks(ctx context.Context, evidenceID string, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk count %d does not match vector count %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return fmt.Errorf("chunks: %w", ErrEmptyInput)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteChunksSQL, evidenceID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	for i, chunk := range chunks {
		chunkID := uuid.New().String()
		if _, err := tx.Exec(ctx, insertChunkSQL,
			chunkID, evidenceID, chunk.Index, chunk.Content, chunk.TokenCount); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
		if _, err := tx.Exec(ctx, insertEmbeddingSQL,
			uuid.New().String(), chunkID, pgvector.NewVector(vectors[i])); err != nil {
			return fmt.Errorf("insert embedding %d: %w", chunk.Index, err)
		}
	}

	if _, err := tx.Exec(ctx, markReadySQL, model.StatusReady, evidenceID); err != nil {
		return fmt.Errorf("mark evidence ready: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	return nil
}
