package uploads

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"docvault-backend/internal/documents"
	"docvault-backend/internal/shared/server/middleware"
	"docvault-backend/internal/shared/server/respond"
)

// Handler exposes upload submission, status polling and the per-document
// event stream.
type Handler struct {
	Orch     *Orchestrator
	Docs     *documents.Service
	MaxBytes int64
	limiter  *pollLimiter
}

// NewHandler constructs a Handler. pollWindow throttles status polling per
// (user, document); zero falls back to the default window.
func NewHandler(orch *Orchestrator, docs *documents.Service, maxBytes int64, pollWindow time.Duration) *Handler {
	return &Handler{
		Orch:     orch,
		Docs:     docs,
		MaxBytes: maxBytes,
		limiter:  newPollLimiter(pollWindow, nil),
	}
}

// RegisterRoutes attaches upload routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.submit)
	rg.GET("/documents/:id/upload-status", h.status)
	rg.GET("/documents/:id/events", h.events)
}

func (h *Handler) submit(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)

	if h.MaxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBytes)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "could not read file", nil)
		return
	}
	defer src.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := h.Orch.Submit(c.Request.Context(), SubmitInput{
		OwnerID:     callerID,
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		FileName:    fileHeader.Filename,
		ContentType: contentType,
		SizeHint:    fileHeader.Size,
		Body:        src,
		RequestID:   c.GetString("requestId"),
	})
	if err != nil {
		respondUploadError(c, err)
		return
	}

	if !result.Async && result.Task.Status == StatusFailed {
		respond.Error(c, http.StatusBadGateway, "upload_failed", result.Task.ErrorMessage, gin.H{
			"documentId": result.Document.ID,
			"taskId":     result.Task.ID,
		})
		return
	}

	status := http.StatusCreated
	if result.Async {
		status = http.StatusAccepted
	}
	respond.JSON(c, status, submitResponse{
		Document: documents.ToResponse(result.Document),
		Task:     toTaskResponse(result.Task),
		Async:    result.Async,
	})
}

func (h *Handler) status(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")

	if !h.limiter.Allow(callerID, documentID) {
		c.Header("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "poll less frequently", nil)
		return
	}

	if _, err := h.Docs.Get(c.Request.Context(), documentID, callerID); err != nil {
		respondUploadError(c, err)
		return
	}

	task, err := h.Orch.LatestTask(c.Request.Context(), documentID)
	if err != nil {
		respondUploadError(c, err)
		return
	}
	respond.OK(c, toTaskResponse(task))
}

// events streams upload status changes for one document over SSE. The
// current task state is sent first so late subscribers see where the
// upload stands; only changes after that point follow. The stream closes
// once a terminal status is delivered.
func (h *Handler) events(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")

	if _, err := h.Docs.Get(c.Request.Context(), documentID, callerID); err != nil {
		respondUploadError(c, err)
		return
	}

	events, cancel := h.Orch.Hub.Subscribe(documentID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	if task, err := h.Orch.LatestTask(c.Request.Context(), documentID); err == nil {
		c.SSEvent("status", toTaskResponse(task))
		c.Writer.Flush()
		if task.Status.Terminal() {
			return
		}
	}

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent("status", event)
			c.Writer.Flush()
			if Status(event.Status).Terminal() {
				return
			}
		}
	}
}

func respondUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownOwner):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrTooLarge):
		respond.Error(c, http.StatusRequestEntityTooLarge, "too_large", err.Error(), nil)
	case errors.Is(err, ErrActiveTaskExists):
		respond.Error(c, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, ErrNotFound), errors.Is(err, documents.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "not found", nil)
	case errors.Is(err, documents.ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "not allowed to access this document", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to process upload request", err.Error())
	}
}
