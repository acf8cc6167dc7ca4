package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voicethink/coach/internal/common"
	"github.com/voicethink/coach/internal/httpapi/middleware"
)

// GetProfile resolves the caller's durable session identity and returns the
// cached profile/metrics snapshots for the dashboard.
func (h *Handler) GetProfile(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	resolved, err := h.Resolver.Resolve(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to resolve profile")
		return
	}

	common.OK(c, gin.H{
		"session_uuid": resolved.SessionUUID,
		"profile_data": resolved.Data,
		"metrics":      resolved.Metrics,
	})
}
