package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docvault-backend/internal/shared/server/middleware"
	"docvault-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
	rg.GET("/users/:id", h.get)
}

// me returns the caller's profile, creating or refreshing it from the
// token claims. Calling this is what makes a user shareable-with.
func (h *Handler) me(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}

	user, err := h.Svc.EnsureUser(
		c.Request.Context(),
		userID,
		middleware.UserEmailFromContext(c),
		middleware.UserNameFromContext(c),
	)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to load profile", err.Error())
		return
	}
	respond.OK(c, user)
}

func (h *Handler) get(c *gin.Context) {
	user, err := h.Svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to load user", err.Error())
		return
	}
	respond.OK(c, user)
}
