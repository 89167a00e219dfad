package model

import (
	"time"
)

// MediaKind distinguishes how a piece of evidence gets its text extracted.
type MediaKind string

const (
	MediaDocument MediaKind = "document"
	MediaImage    MediaKind = "image"
)

// ProcessingStatus constants for the evidence ingestion lifecycle
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// EvidenceDocument represents one uploaded file inside a case workspace.
// A document is owned by exactly one user and one case; search never crosses
// that boundary.
type EvidenceDocument struct {
	ID         string    `json:"id"`
	CaseID     string    `json:"case_id"`
	OwnerID    string    `json:"owner_id"`
	Kind       MediaKind `json:"kind"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"storage_key"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	Status     string    `json:"status"` // pending, processing, ready, failed
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TextChunk is one bounded window of a document's extracted text.
// Indices per evidence document are 0-based, dense and gapless.
type TextChunk struct {
	ID         string `json:"id"`
	EvidenceID string `json:"evidence_id"`
	Index      int    `json:"index"`
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
}

// SearchHit is one row of an ownership-scoped vector search, closest first.
type SearchHit struct {
	EvidenceID   string  `json:"evidence_id"`
	ChunkContent string  `json:"chunk_content"`
	Distance     float64 `json:"distance"`
}

// QueryRecord is the append-only log of every question asked, regardless of
// whether it was refused, unanswerable or answered.
type QueryRecord struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	CaseID        string    `json:"case_id"`
	Question      string    `json:"question"`
	AnswerSummary string    `json:"answer_summary"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditEvent is an append-only observability record. It is never consulted
// for authorization decisions.
type AuditEvent struct {
	ID         string            `json:"id"`
	Actor      string            `json:"actor"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
