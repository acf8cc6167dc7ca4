package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voicethink/coach/internal/ai"
	"github.com/voicethink/coach/internal/common"
)

type realtimeTokenReq struct {
	UserID      uint64 `json:"user_id" binding:"required"`
	SessionUUID string `json:"session_uuid" binding:"required,uuid"`
	PromptID    string `json:"prompt_id" binding:"required,uuid"`
}

// RealtimeToken assembles voice instructions for the caller's session and
// exchanges them for an ephemeral realtime credential. The upstream payload
// is returned untouched so the browser can open the audio transport directly.
func (h *Handler) RealtimeToken(c *gin.Context) {
	var req realtimeTokenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid payload")
		return
	}

	instructions, err := h.Orch.VoiceInstructions(c.Request.Context(), req.UserID, req.SessionUUID, req.PromptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "prompt not found")
			return
		}
		h.Logger.Error("voice instructions failed", zap.String("session_uuid", req.SessionUUID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	payload, err := h.Realtime.CreateEphemeralSession(c.Request.Context(), instructions)
	if err != nil {
		var upstream *ai.UpstreamError
		if errors.As(err, &upstream) {
			common.Fail(c, upstream.Status, 50201, upstream.Message)
			return
		}
		h.Logger.Error("realtime session failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to create realtime session")
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}
