package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"docvault-backend/internal/audit"
	"docvault-backend/internal/documents"
	"docvault-backend/internal/notify"
	"docvault-backend/internal/shared/storage/object/local"
	"docvault-backend/internal/sharing"
	"docvault-backend/internal/users"
)

// ownersAdapter mirrors the application wiring between the documents repo
// and the sharing service.
type ownersAdapter struct {
	repo documents.Repo
}

func (o ownersAdapter) Owner(ctx context.Context, documentID string) (string, error) {
	doc, err := o.repo.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return "", sharing.ErrDocumentNotFound
		}
		return "", err
	}
	if doc.Status == documents.StatusDeleted {
		return "", sharing.ErrDocumentNotFound
	}
	return doc.OwnerID, nil
}

type handlerFixture struct {
	orch   *Orchestrator
	docs   *documents.Service
	router *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	ctx := context.Background()

	userRepo := users.NewMemoryRepo()
	for _, id := range []string{"owner", "alice"} {
		if err := userRepo.Upsert(ctx, users.User{ID: id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	docRepo := documents.NewMemoryRepo()
	shares := &sharing.Service{
		Repo:  sharing.NewMemoryRepo(),
		Users: userRepo,
		Docs:  ownersAdapter{repo: docRepo},
	}
	store := local.New(t.TempDir())
	docsSvc := &documents.Service{
		Repo:   docRepo,
		Access: shares,
		Store:  store,
		Audit:  &audit.Service{Repo: audit.NewMemoryRepo()},
	}
	orch := &Orchestrator{
		Tasks:         NewMemoryRepo(),
		Docs:          docRepo,
		Users:         userRepo,
		Store:         store,
		Stage:         &Stager{Dir: t.TempDir()},
		Hub:           notify.NewHub(),
		Queue:         &capturingQueue{},
		SyncThreshold: 1 << 20,
		MaxBytes:      10 << 20,
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-User-Id"); id != "" {
			c.Set("userId", id)
		}
		c.Next()
	})
	api := router.Group("/api/v1")
	NewHandler(orch, docsSvc, orch.MaxBytes, time.Second).RegisterRoutes(api)

	return &handlerFixture{orch: orch, docs: docsSvc, router: router}
}

func multipartUpload(t *testing.T, fileName, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestSubmitEndpointSyncUpload(t *testing.T) {
	f := newHandlerFixture(t)

	body, contentType := multipartUpload(t, "notes.txt", "meeting notes", map[string]string{"title": "Notes"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-Id", "owner")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Document documents.DocumentResponse `json:"document"`
		Task     TaskResponse               `json:"task"`
		Async    bool                       `json:"async"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Async {
		t.Fatal("small upload should complete inline")
	}
	if payload.Task.Status != string(StatusCompleted) {
		t.Fatalf("expected completed task, got %s", payload.Task.Status)
	}
	if payload.Document.Status != string(documents.StatusActive) {
		t.Fatalf("expected active document, got %s", payload.Document.Status)
	}
	if payload.Document.Title != "Notes" {
		t.Fatalf("expected title from form field, got %q", payload.Document.Title)
	}
}

func TestSubmitEndpointAsyncUpload(t *testing.T) {
	f := newHandlerFixture(t)
	f.orch.SyncThreshold = 1

	body, contentType := multipartUpload(t, "big.bin", strings.Repeat("x", 64), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-Id", "owner")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Task  TaskResponse `json:"task"`
		Async bool         `json:"async"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.Async {
		t.Fatal("large upload should be queued")
	}
	if payload.Task.Status != string(StatusPending) {
		t.Fatalf("expected pending task, got %s", payload.Task.Status)
	}
}

func TestSubmitEndpointRequiresFile(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=none")
	req.Header.Set("X-User-Id", "owner")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestStatusEndpointChecksAccessAndThrottles(t *testing.T) {
	f := newHandlerFixture(t)

	body, contentType := multipartUpload(t, "notes.txt", "status poll target", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-Id", "owner")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d", resp.Code)
	}
	var submitted struct {
		Document documents.DocumentResponse `json:"document"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	statusPath := "/api/v1/documents/" + submitted.Document.ID + "/upload-status"

	poll := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, statusPath, nil)
		req.Header.Set("X-User-Id", userID)
		resp := httptest.NewRecorder()
		f.router.ServeHTTP(resp, req)
		return resp
	}

	first := poll("owner")
	if first.Code != http.StatusOK {
		t.Fatalf("first poll: expected 200, got %d: %s", first.Code, first.Body.String())
	}
	var task TaskResponse
	if err := json.Unmarshal(first.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Status != string(StatusCompleted) {
		t.Fatalf("expected completed task, got %s", task.Status)
	}

	// Immediate re-poll by the same user trips the limiter.
	second := poll("owner")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second poll: expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// Another user without access is rejected, not throttled.
	if foreign := poll("alice"); foreign.Code != http.StatusForbidden {
		t.Fatalf("foreign poll: expected 403, got %d", foreign.Code)
	}
}

func TestEventsEndpointSendsSnapshotAndCloses(t *testing.T) {
	f := newHandlerFixture(t)

	body, contentType := multipartUpload(t, "notes.txt", "event stream target", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-Id", "owner")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d", resp.Code)
	}
	var submitted struct {
		Document documents.DocumentResponse `json:"document"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// The task is already terminal, so the stream sends the snapshot and
	// returns without waiting for further events.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	eventReq := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+submitted.Document.ID+"/events", nil).WithContext(ctx)
	eventReq.Header.Set("X-User-Id", "owner")
	eventResp := httptest.NewRecorder()
	f.router.ServeHTTP(eventResp, eventReq)

	if eventResp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", eventResp.Code)
	}
	if got := eventResp.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("expected SSE content type, got %q", got)
	}
	if !strings.Contains(eventResp.Body.String(), string(StatusCompleted)) {
		t.Fatalf("expected completed snapshot in stream, got %q", eventResp.Body.String())
	}
}
