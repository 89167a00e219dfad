package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/casevault/backend/pkg/logger"
)

// Audit action tags.
const (
	ActionQueryAsked      = "query.asked"
	ActionEvidenceCreated = "evidence.created"
)

// AuditSink records compliance events. It is fire-and-forget relative to the
// caller's return value: persistence failures are logged and swallowed, never
// propagated, so audit trouble can't fail or block an answer. Writes happen
// synchronously before the response is returned — a successful response means
// an audit write was attempted, not that it succeeded.
type AuditSink struct {
	db DB
}

func NewAuditSink(db DB) *AuditSink {
	return &AuditSink{db: db}
}

const insertAuditSQL = `
INSERT INTO audit_events (id, actor, action, entity_type, entity_id, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Record writes a generic audit event. Never returns an error.
func (s *AuditSink) Record(ctx context.Context, actor, action, entityType, entityID string, metadata map[string]string) {
	var meta []byte
	if len(metadata) > 0 {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			logger.Error(ctx, "failed to marshal audit metadata", "action", action, "error", err)
			meta = nil
		}
	}

	_, err := s.db.Exec(ctx, insertAuditSQL,
		uuid.New().String(), actor, action, entityType, entityID, meta, time.Now())
	if err != nil {
		logger.Error(ctx, "failed to write audit event",
			"actor", actor,
			"action", action,
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
	}
}

const insertQuerySQL = `
INSERT INTO queries (id, user_id, case_id, question, answer_summary, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// RecordQuery appends one query row — every question asked gets exactly one,
// whether it was refused, unanswerable or answered — and emits an audit event
// referencing it. Failures are logged, never raised.
func (s *AuditSink) RecordQuery(ctx context.Context, userID, caseID, question, answerSummary, outcome string) {
	queryID := uuid.New().String()

	_, err := s.db.Exec(ctx, insertQuerySQL,
		queryID, userID, caseID, question, answerSummary, time.Now())
	if err != nil {
		logger.Error(ctx, "failed to write query record",
			"case_id", caseID,
			"outcome", outcome,
			"error", err,
		)
		return
	}

	s.Record(ctx, userID, ActionQueryAsked, "query", queryID, map[string]string{
		"case_id": caseID,
		"outcome": outcome,
	})
}
