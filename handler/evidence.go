package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/casevault/backend/config"
	"github.com/casevault/backend/middleware"
	"github.com/casevault/backend/model"
	"github.com/casevault/backend/pkg/logger"
	"github.com/casevault/backend/service"
)

// objectUploader stores raw evidence files and issues time-limited download
// links for them.
type objectUploader interface {
	Upload(ctx context.Context, storageKey string, reader io.Reader, size int64, contentType string) error
	GetPresignedURL(ctx context.Context, storageKey string) (string, error)
}

// evidenceRepo is the slice of the evidence store the handler needs.
type evidenceRepo interface {
	Create(ctx context.Context, doc *model.EvidenceDocument) error
	Get(ctx context.Context, id string) (*model.EvidenceDocument, error)
	ListByCase(ctx context.Context, ownerID, caseID string) ([]*model.EvidenceDocument, error)
}

// ingestRunner processes an uploaded document in the background.
type ingestRunner interface {
	Process(ctx context.Context, evidenceID string)
}

// auditor records evidence lifecycle events.
type auditor interface {
	Record(ctx context.Context, actor, action, entityType, entityID string, metadata map[string]string)
}

type EvidenceHandler struct {
	objects      objectUploader
	store        evidenceRepo
	ingest       ingestRunner
	audit        auditor
	maxFileBytes int64
}

func NewEvidenceHandler(objects objectUploader, store evidenceRepo, ingest ingestRunner, audit auditor, cfg *config.IngestConfig) *EvidenceHandler {
	return &EvidenceHandler{
		objects:      objects,
		store:        store,
		ingest:       ingest,
		audit:        audit,
		maxFileBytes: cfg.MaxFileBytes,
	}
}

// Upload handles evidence file upload into a case workspace. The file lands
// in object storage and a pending document row; extraction, chunking and
// embedding run in the background.
func (h *EvidenceHandler) Upload(c *gin.Context) {
	userID := middleware.GetUserID(c)
	caseID := c.Param("caseID")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	if header.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is empty"})
		return
	}
	if header.Size > h.maxFileBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("File exceeds maximum size of %d bytes", h.maxFileBytes)})
		return
	}

	contentType := header.Header.Get("Content-Type")
	kind, err := service.ResolveKind(contentType, header.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF and image files are allowed"})
		return
	}

	evidenceID := uuid.New().String()
	storageKey := fmt.Sprintf("%s/%s/%s/%s", userID, caseID, evidenceID, header.Filename)

	if err := h.objects.Upload(c.Request.Context(), storageKey, file, header.Size, contentType); err != nil {
		logger.Error(c.Request.Context(), "failed to store evidence file", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
		return
	}

	doc := &model.EvidenceDocument{
		ID:         evidenceID,
		CaseID:     caseID,
		OwnerID:    userID,
		Kind:       kind,
		Filename:   header.Filename,
		StorageKey: storageKey,
		MimeType:   contentType,
		SizeBytes:  header.Size,
		Status:     model.StatusPending,
	}
	if err := h.store.Create(c.Request.Context(), doc); err != nil {
		logger.Error(c.Request.Context(), "failed to create evidence record", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create evidence record"})
		return
	}

	h.audit.Record(c.Request.Context(), userID, service.ActionEvidenceCreated, "evidence", evidenceID, map[string]string{
		"case_id":  caseID,
		"filename": header.Filename,
	})

	// Ingestion outlives the request; give it a fresh context carrying the
	// log fields.
	ingestCtx := context.WithValue(context.Background(), logger.UserIDKey, userID)
	ingestCtx = context.WithValue(ingestCtx, logger.CaseIDKey, caseID)
	go h.ingest.Process(ingestCtx, evidenceID)

	c.JSON(http.StatusAccepted, gin.H{
		"id":       evidenceID,
		"filename": header.Filename,
		"kind":     kind,
		"status":   model.StatusPending,
	})
}

// List returns all evidence documents of a case for the current user
func (h *EvidenceHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	caseID := c.Param("caseID")

	docs, err := h.store.ListByCase(c.Request.Context(), userID, caseID)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list evidence", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list evidence"})
		return
	}

	result := make([]gin.H, len(docs))
	for i, doc := range docs {
		result[i] = gin.H{
			"id":         doc.ID,
			"filename":   doc.Filename,
			"kind":       doc.Kind,
			"status":     doc.Status,
			"size_bytes": doc.SizeBytes,
			"created_at": doc.CreatedAt.Format(time.RFC3339),
			"updated_at": doc.UpdatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{"evidence": result})
}

// Get returns a single evidence document
func (h *EvidenceHandler) Get(c *gin.Context) {
	doc := h.ownedDocument(c)
	if doc == nil {
		return
	}

	c.JSON(http.StatusOK, doc)
}

// GetStatus returns the processing status of an evidence document
func (h *EvidenceHandler) GetStatus(c *gin.Context) {
	doc := h.ownedDocument(c)
	if doc == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         doc.ID,
		"status":     doc.Status,
		"last_error": doc.LastError,
	})
}

// Download returns a presigned URL for the original uploaded file.
func (h *EvidenceHandler) Download(c *gin.Context) {
	doc := h.ownedDocument(c)
	if doc == nil {
		return
	}

	url, err := h.objects.GetPresignedURL(c.Request.Context(), doc.StorageKey)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to presign evidence download", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate download link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       doc.ID,
		"filename": doc.Filename,
		"url":      url,
	})
}

// ownedDocument loads the document and enforces owner+case scoping, writing
// a 404 when either does not match.
func (h *EvidenceHandler) ownedDocument(c *gin.Context) *model.EvidenceDocument {
	userID := middleware.GetUserID(c)
	caseID := c.Param("caseID")
	id := c.Param("id")

	doc, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to load evidence", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load evidence"})
		return nil
	}
	if doc == nil || doc.OwnerID != userID || doc.CaseID != caseID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Evidence not found"})
		return nil
	}
	return doc
}
