package service

import (
	"context"
	"fmt"

	"github.com/casevault/backend/config"
	"github.com/casevault/backend/model"
	"github.com/casevault/backend/pkg/logger"
)

// objectFetcher reads the raw evidence bytes back from object storage.
type objectFetcher interface {
	Fetch(ctx context.Context, storageKey string) ([]byte, error)
}

// textExtractor converts raw file bytes into normalized text.
type textExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType, filename string) (string, error)
}

// chunkEmbedder embeds a batch of chunk contents.
type chunkEmbedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, int, error)
}

// chunkWriter persists chunks plus embeddings atomically and marks the
// document ready.
type chunkWriter interface {
	ReplaceChunks(ctx context.Context, evidenceID string, chunks []Chunk, vectors [][]float32) error
}

// evidenceLifecycle is the slice of the evidence store ingestion needs.
type evidenceLifecycle interface {
	Get(ctx context.Context, id string) (*model.EvidenceDocument, error)
	ClaimProcessing(ctx context.Context, id string) (bool, error)
	SetStatus(ctx context.Context, id, status, lastError string) error
}

// IngestService runs the offline ingestion path: fetch the stored file,
// extract text, chunk it, embed the chunks and persist everything. Failures
// are absorbed into the evidence document's status and last_error for
// out-of-band retry; Process never panics its caller.
type IngestService struct {
	objects   objectFetcher
	evidence  evidenceLifecycle
	extractor textExtractor
	embedder  chunkEmbedder
	vectors   chunkWriter

	chunkSize    int
	chunkOverlap int
}

func NewIngestService(objects objectFetcher, evidence evidenceLifecycle, extractor textExtractor, embedder chunkEmbedder, vectors chunkWriter, cfg *config.IngestConfig) *IngestService {
	return &IngestService{
		objects:      objects,
		evidence:     evidence,
		extractor:    extractor,
		embedder:     embedder,
		vectors:      vectors,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
	}
}

// Process ingests one evidence document. The pending→processing transition
// is claimed atomically, so a second concurrent call for the same document
// returns without doing work.
func (s *IngestService) Process(ctx context.Context, evidenceID string) {
	claimed, err := s.evidence.ClaimProcessing(ctx, evidenceID)
	if err != nil {
		logger.Error(ctx, "failed to claim evidence for processing",
			"evidence_id", evidenceID, "error", err)
		return
	}
	if !claimed {
		logger.Info(ctx, "evidence already claimed or not pending, skipping",
			"evidence_id", evidenceID)
		return
	}

	if err := s.run(ctx, evidenceID); err != nil {
		logger.Error(ctx, "evidence ingestion failed",
			"evidence_id", evidenceID, "error", err)
		if statusErr := s.evidence.SetStatus(ctx, evidenceID, model.StatusFailed, err.Error()); statusErr != nil {
			logger.Error(ctx, "failed to record ingestion failure",
				"evidence_id", evidenceID, "error", statusErr)
		}
		return
	}

	logger.Info(ctx, "evidence ingested", "evidence_id", evidenceID)
}

func (s *IngestService) run(ctx context.Context, evidenceID string) error {
	doc, err := s.evidence.Get(ctx, evidenceID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("evidence document %s not found", evidenceID)
	}

	data, err := s.objects.Fetch(ctx, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("fetch stored file: %w", err)
	}

	text, err := s.extractor.Extract(ctx, data, doc.MimeType, doc.Filename)
	if err != nil {
		return err
	}

	chunks, err := ChunkText(text, s.chunkSize, s.chunkOverlap)
	if err != nil {
		return fmt.Errorf("chunk text: %w", err)
	}

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}

	// An embedding failure aborts here with nothing persisted: the
	// document's chunk and embedding state stays exactly as it was.
	vectors, totalTokens, err := s.embedder.EmbedMany(ctx, contents)
	if err != nil {
		return err
	}

	if err := s.vectors.ReplaceChunks(ctx, evidenceID, chunks, vectors); err != nil {
		return err
	}

	logger.Debug(ctx, "chunks embedded and persisted",
		"evidence_id", evidenceID,
		"chunks", len(chunks),
		"total_tokens", totalTokens,
	)
	return nil
}
