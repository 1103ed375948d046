package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestLoggingIncludesRequiredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestID(), Auth("dev"), Logging())
	router.GET("/test", func(c *gin.Context) {
		c.Set("documentId", "doc-1")
		c.Set("taskId", "task-1")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() {
		os.Stdout = origStdout
	}()

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-User-Id", "user-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	w.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("read log output: %v", err)
	}
	os.Stdout = origStdout

	var logLine map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		if parsed["msg"] == "request.complete" {
			logLine = parsed
			break
		}
	}
	if logLine == nil {
		t.Fatalf("no request.complete log line in output: %q", buf.String())
	}

	for _, field := range []string{"request_id", "method", "path", "status", "duration_ms", "user_id", "document_id", "task_id"} {
		if _, ok := logLine[field]; !ok {
			t.Errorf("missing log field %q in %v", field, logLine)
		}
	}
	if logLine["user_id"] != "user-1" {
		t.Errorf("expected user_id user-1, got %v", logLine["user_id"])
	}
	if logLine["document_id"] != "doc-1" {
		t.Errorf("expected document_id doc-1, got %v", logLine["document_id"])
	}
}
