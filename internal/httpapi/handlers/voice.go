package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicethink/coach/internal/common"
	"github.com/voicethink/coach/internal/conversation"
	"github.com/voicethink/coach/internal/interactions"
)

type voiceEntryReq struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

type voiceLogReq struct {
	UserID      uint64          `json:"user_id" binding:"required"`
	SessionUUID string          `json:"session_uuid" binding:"required,uuid"`
	PromptID    string          `json:"prompt_id" binding:"required,uuid"`
	Entries     []voiceEntryReq `json:"entries" binding:"required,min=1,dive"`
}

// LogVoice records a batch of transcribed voice turns produced out-of-band by
// the realtime transport. The completion capability is not called here.
func (h *Handler) LogVoice(c *gin.Context) {
	var req voiceLogReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid payload")
		return
	}

	entries := make([]conversation.VoiceEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		role := interactions.RoleUser
		if e.Role == interactions.RoleAssistant {
			role = interactions.RoleAssistant
		}
		entries = append(entries, conversation.VoiceEntry{Role: role, Content: e.Content})
	}

	conversationID, err := h.Orch.LogVoiceEntries(c.Request.Context(), conversation.VoiceLogInput{
		UserID:      req.UserID,
		SessionUUID: req.SessionUUID,
		PromptID:    req.PromptID,
		Entries:     entries,
	})
	if err != nil {
		h.Logger.Error("voice log failed",
			zap.String("session_uuid", req.SessionUUID),
			zap.Error(err),
		)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to record voice interaction")
		return
	}

	common.OK(c, gin.H{"conversation_id": conversationID})
}
