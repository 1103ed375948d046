package documents

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docvault-backend/internal/shared/server/middleware"
	"docvault-backend/internal/shared/server/respond"
	"docvault-backend/internal/sharing"
)

// Handler wires HTTP handlers to the documents service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group. Uploads are
// registered separately by the uploads handler.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.PATCH("/documents/:id", h.updateMeta)
	rg.DELETE("/documents/:id", h.remove)
	rg.POST("/documents/:id/archive", h.archive)
	rg.POST("/documents/:id/restore", h.restore)
	rg.GET("/documents/:id/download", h.download)
	rg.GET("/documents/:id/access-logs", h.accessLogs)
}

func (h *Handler) list(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)

	result, err := h.Svc.List(c.Request.Context(), callerID, limit, offset)
	if err != nil {
		respondDocumentError(c, err)
		return
	}
	respond.OK(c, gin.H{
		"owned":  toResponses(result.Owned),
		"shared": toResponses(result.Shared),
	})
}

func (h *Handler) get(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	doc, err := h.Svc.Get(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		respondDocumentError(c, err)
		return
	}
	respond.OK(c, ToResponse(doc))
}

type updateMetaRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *Handler) updateMeta(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)

	var req updateMetaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	doc, err := h.Svc.UpdateMeta(c.Request.Context(), c.Param("id"), callerID, req.Title, req.Description)
	if err != nil {
		respondDocumentError(c, err)
		return
	}
	respond.OK(c, ToResponse(doc))
}

func (h *Handler) remove(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	if err := h.Svc.Delete(c.Request.Context(), c.Param("id"), callerID); err != nil {
		respondDocumentError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) archive(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	if err := h.Svc.Archive(c.Request.Context(), c.Param("id"), callerID); err != nil {
		respondDocumentError(c, err)
		return
	}
	respond.OK(c, gin.H{"status": string(StatusArchived)})
}

func (h *Handler) restore(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	if err := h.Svc.Restore(c.Request.Context(), c.Param("id"), callerID); err != nil {
		respondDocumentError(c, err)
		return
	}
	respond.OK(c, gin.H{"status": string(StatusActive)})
}

func (h *Handler) download(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	meta := RequestMeta{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	link, err := h.Svc.Download(c.Request.Context(), c.Param("id"), callerID, meta)
	if err != nil {
		respondDocumentError(c, err)
		return
	}
	respond.OK(c, downloadResponse{
		URL:       link.URL,
		FileName:  link.FileName,
		ExpiresAt: link.ExpiresAt,
	})
}

func (h *Handler) accessLogs(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	entries, err := h.Svc.AccessLogs(c.Request.Context(), c.Param("id"), callerID, limit, offset)
	if err != nil {
		respondDocumentError(c, err)
		return
	}
	respond.OK(c, gin.H{"logs": toAccessLogResponses(entries)})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return val
}

func respondDocumentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrForbidden), errors.Is(err, sharing.ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "not allowed to access this document", nil)
	case errors.Is(err, ErrNotReady):
		respond.Error(c, http.StatusConflict, "not_ready", "document has no stored file yet", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to process document request", err.Error())
	}
}
