package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/casevault/backend/config"
	"github.com/casevault/backend/model"
)

type fakeUploader struct {
	lastKey    string
	err        error
	presignErr error
}

func (f *fakeUploader) Upload(_ context.Context, storageKey string, _ io.Reader, _ int64, _ string) error {
	f.lastKey = storageKey
	return f.err
}

func (f *fakeUploader) GetPresignedURL(_ context.Context, storageKey string) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://storage.example/" + storageKey + "?sig=abc", nil
}

type fakeEvidenceRepo struct {
	created *model.EvidenceDocument
	doc     *model.EvidenceDocument
	docs    []*model.EvidenceDocument
	getErr  error
	listErr error
}

func (f *fakeEvidenceRepo) Create(_ context.Context, doc *model.EvidenceDocument) error {
	f.created = doc
	return nil
}

func (f *fakeEvidenceRepo) Get(_ context.Context, _ string) (*model.EvidenceDocument, error) {
	return f.doc, f.getErr
}

func (f *fakeEvidenceRepo) ListByCase(_ context.Context, _, _ string) ([]*model.EvidenceDocument, error) {
	return f.docs, f.listErr
}

type fakeIngest struct {
	processed chan string
}

func (f *fakeIngest) Process(_ context.Context, evidenceID string) {
	f.processed <- evidenceID
}

type fakeAuditRecorder struct {
	actions []string
}

func (f *fakeAuditRecorder) Record(_ context.Context, _, action, _, _ string, _ map[string]string) {
	f.actions = append(f.actions, action)
}

func evidenceRouter(h *EvidenceHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	router.POST("/api/cases/:caseID/evidence", h.Upload)
	router.GET("/api/cases/:caseID/evidence", h.List)
	router.GET("/api/cases/:caseID/evidence/:id", h.Get)
	router.GET("/api/cases/:caseID/evidence/:id/status", h.GetStatus)
	router.GET("/api/cases/:caseID/evidence/:id/download", h.Download)
	return router
}

func newEvidenceHandler(uploader *fakeUploader, repo *fakeEvidenceRepo, ingest *fakeIngest, audit *fakeAuditRecorder) *EvidenceHandler {
	return NewEvidenceHandler(uploader, repo, ingest, audit,
		&config.IngestConfig{MaxFileBytes: 1 << 20})
}

func multipartUpload(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestUpload_PDFAccepted(t *testing.T) {
	uploader := &fakeUploader{}
	repo := &fakeEvidenceRepo{}
	ingest := &fakeIngest{processed: make(chan string, 1)}
	audit := &fakeAuditRecorder{}
	router := evidenceRouter(newEvidenceHandler(uploader, repo, ingest, audit), "user-1")

	body, contentType := multipartUpload(t, "lease.pdf", "application/pdf", []byte("%PDF-1.4 fake"))
	req := httptest.NewRequest(http.MethodPost, "/api/cases/case-1/evidence", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	if repo.created == nil {
		t.Fatal("expected a document row")
	}
	if repo.created.Status != model.StatusPending {
		t.Errorf("status = %q, want pending", repo.created.Status)
	}
	if repo.created.Kind != model.MediaDocument {
		t.Errorf("kind = %q, want document", repo.created.Kind)
	}
	if repo.created.OwnerID != "user-1" || repo.created.CaseID != "case-1" {
		t.Errorf("ownership not recorded: %+v", repo.created)
	}
	if uploader.lastKey == "" {
		t.Error("file was not stored")
	}

	select {
	case id := <-ingest.processed:
		if id != repo.created.ID {
			t.Errorf("ingestion started for %q, want %q", id, repo.created.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ingestion was never started")
	}

	if len(audit.actions) != 1 {
		t.Errorf("expected one audit event, got %v", audit.actions)
	}
}

func TestUpload_NoFile(t *testing.T) {
	router := evidenceRouter(newEvidenceHandler(&fakeUploader{}, &fakeEvidenceRepo{},
		&fakeIngest{processed: make(chan string, 1)}, &fakeAuditRecorder{}), "user-1")

	req := httptest.NewRequest(http.MethodPost, "/api/cases/case-1/evidence", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestUpload_UnsupportedType(t *testing.T) {
	router := evidenceRouter(newEvidenceHandler(&fakeUploader{}, &fakeEvidenceRepo{},
		&fakeIngest{processed: make(chan string, 1)}, &fakeAuditRecorder{}), "user-1")

	body, contentType := multipartUpload(t, "notes.txt", "text/plain", []byte("plain text"))
	req := httptest.NewRequest(http.MethodPost, "/api/cases/case-1/evidence", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestUpload_StorageFailure(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("minio down")}
	repo := &fakeEvidenceRepo{}
	router := evidenceRouter(newEvidenceHandler(uploader, repo,
		&fakeIngest{processed: make(chan string, 1)}, &fakeAuditRecorder{}), "user-1")

	body, contentType := multipartUpload(t, "scan.png", "image/png", []byte{0x89, 0x50})
	req := httptest.NewRequest(http.MethodPost, "/api/cases/case-1/evidence", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if repo.created != nil {
		t.Error("no row may be created when storage fails")
	}
}

func TestList(t *testing.T) {
	repo := &fakeEvidenceRepo{docs: []*model.EvidenceDocument{
		{ID: "ev-1", Filename: "a.pdf", Status: model.StatusReady},
		{ID: "ev-2", Filename: "b.png", Status: model.StatusPending},
	}}
	router := evidenceRouter(newEvidenceHandler(&fakeUploader{}, repo,
		&fakeIngest{processed: make(chan string, 1)}, &fakeAuditRecorder{}), "user-1")

	req := httptest.NewRequest(http.MethodGet, "/api/cases/case-1/evidence", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Evidence []map[string]any `json:"evidence"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Evidence) != 2 {
		t.Errorf("expected 2 documents, got %d", len(resp.Evidence))
	}
}

func TestGetStatus(t *testing.T) {
	repo := &fakeEvidenceRepo{doc: &model.EvidenceDocument{
		ID:        "ev-1",
		CaseID:    "case-1",
		OwnerID:   "user-1",
		Status:    model.StatusFailed,
		LastError: "no text extracted",
	}}
	router := evidenceRouter(newEvidenceHandler(&fakeUploader{}, repo,
		&fakeIngest{processed: make(chan string, 1)}, &fakeAuditRecorder{}), "user-1")

	req := httptest.NewRequest(http.MethodGet, "/api/cases/case-1/evidence/ev-1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Status    string `json:"status"`
		LastError string `json:"last_error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != model.StatusFailed || resp.LastError == "" {
		t.Errorf("unexpected status payload: %+v", resp)
	}
}

func TestDownload(t *testing.T) {
	repo := &fakeEvidenceRepo{doc: &model.EvidenceDocument{
		ID:         "ev-1",
		CaseID:     "case-1",
		OwnerID:    "user-1",
		Filename:   "lease.pdf",
		StorageKey: "user-1/case-1/ev-1/lease.pdf",
		Status:     model.StatusReady,
	}}
	router := evidenceRouter(newEvidenceHandler(&fakeUploader{}, repo,
		&fakeIngest{processed: make(chan string, 1)}, &fakeAuditRecorder{}), "user-1")

	req := httptest.NewRequest(http.MethodGet, "/api/cases/case-1/evidence/ev-1/download", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.URL == "" {
		t.Error("expected a presigned url")
	}
}

// Evidence from a different owner or case reads as not found, never as
// forbidden: the handler does not reveal that the document exists.
func TestGet_OwnershipScoping(t *testing.T) {
	tests := []struct {
		name string
		doc  *model.EvidenceDocument
	}{
		{"missing document", nil},
		{"other owner", &model.EvidenceDocument{ID: "ev-1", CaseID: "case-1", OwnerID: "user-2"}},
		{"other case", &model.EvidenceDocument{ID: "ev-1", CaseID: "case-9", OwnerID: "user-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeEvidenceRepo{doc: tt.doc}
			router := evidenceRouter(newEvidenceHandler(&fakeUploader{}, repo,
				&fakeIngest{processed: make(chan string, 1)}, &fakeAuditRecorder{}), "user-1")

			req := httptest.NewRequest(http.MethodGet, "/api/cases/case-1/evidence/ev-1", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("expected 404, got %d", w.Code)
			}
		})
	}
}

func TestGet_OwnedDocument(t *testing.T) {
	repo := &fakeEvidenceRepo{doc: &model.EvidenceDocument{
		ID:      "ev-1",
		CaseID:  "case-1",
		OwnerID: "user-1",
		Status:  model.StatusReady,
	}}
	router := evidenceRouter(newEvidenceHandler(&fakeUploader{}, repo,
		&fakeIngest{processed: make(chan string, 1)}, &fakeAuditRecorder{}), "user-1")

	req := httptest.NewRequest(http.MethodGet, "/api/cases/case-1/evidence/ev-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
