package sharing

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docvault-backend/internal/shared/server/middleware"
	"docvault-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the sharing service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches sharing routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/shares", h.grant)
	rg.POST("/documents/:id/shares/bulk", h.bulkGrant)
	rg.GET("/documents/:id/shares", h.list)
	rg.DELETE("/documents/:id/shares/:granteeId", h.revoke)
	rg.GET("/documents/:id/access", h.checkAccess)
}

type grantRequest struct {
	GranteeID string     `json:"granteeId"`
	Level     string     `json:"level"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (h *Handler) grant(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")

	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	level, err := ParseLevel(req.Level)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	grant, err := h.Svc.Grant(c.Request.Context(), documentID, callerID, req.GranteeID, level, req.ExpiresAt)
	if err != nil {
		respondShareError(c, err)
		return
	}
	respond.JSON(c, http.StatusCreated, toResponse(grant))
}

type bulkGrantRequest struct {
	GranteeIDs []string   `json:"granteeIds"`
	Level      string     `json:"level"`
	ExpiresAt  *time.Time `json:"expiresAt"`
}

func (h *Handler) bulkGrant(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")

	var req bulkGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if len(req.GranteeIDs) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "granteeIds is required", nil)
		return
	}
	level, err := ParseLevel(req.Level)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	results := h.Svc.BulkGrant(c.Request.Context(), documentID, callerID, req.GranteeIDs, level, req.ExpiresAt)

	items := make([]BulkGrantItem, 0, len(results))
	granted := 0
	for _, res := range results {
		item := BulkGrantItem{GranteeID: res.GranteeID, OK: res.Err == nil}
		if res.Err != nil {
			item.Error = res.Err.Error()
		} else {
			granted++
			resp := toResponse(*res.Grant)
			item.Grant = &resp
		}
		items = append(items, item)
	}

	respond.JSON(c, http.StatusMultiStatus, gin.H{
		"granted": granted,
		"results": items,
	})
}

func (h *Handler) list(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")

	grants, err := h.Svc.ListByDocument(c.Request.Context(), documentID, callerID)
	if err != nil {
		respondShareError(c, err)
		return
	}

	out := make([]GrantResponse, 0, len(grants))
	for _, grant := range grants {
		out = append(out, toResponse(grant))
	}
	respond.OK(c, gin.H{"shares": out})
}

func (h *Handler) revoke(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")
	granteeID := c.Param("granteeId")

	if err := h.Svc.Revoke(c.Request.Context(), documentID, callerID, granteeID); err != nil {
		respondShareError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) checkAccess(c *gin.Context) {
	callerID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")

	level, err := ParseLevel(c.DefaultQuery("level", string(LevelView)))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	allowed, err := h.Svc.Check(c.Request.Context(), documentID, callerID, level)
	if err != nil {
		respondShareError(c, err)
		return
	}
	respond.OK(c, gin.H{"allowed": allowed, "level": string(level)})
}

func respondShareError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrUnknownGrantee), errors.Is(err, ErrOwnerGrantee), errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to process share request", err.Error())
	}
}
