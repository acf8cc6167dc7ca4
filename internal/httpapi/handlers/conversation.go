package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voicethink/coach/internal/ai"
	"github.com/voicethink/coach/internal/common"
	"github.com/voicethink/coach/internal/conversation"
	"github.com/voicethink/coach/internal/httpapi/middleware"
)

type sendMessageReq struct {
	PromptID       string `json:"prompt_id" binding:"required,uuid"`
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversation_id"`
}

// failConversationErr maps orchestrator errors onto the envelope: a missing
// prompt is a client-visible 404, upstream provider failures keep their
// status, everything else is a plain 500.
func (h *Handler) failConversationErr(c *gin.Context, err error) {
	var upstream *ai.UpstreamError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		common.Fail(c, http.StatusNotFound, 40404, "prompt not found")
	case errors.As(err, &upstream):
		common.Fail(c, upstream.Status, 50201, upstream.Message)
	default:
		h.Logger.Error("conversation failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

func (h *Handler) SendMessage(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	resolved, err := h.Resolver.Resolve(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to resolve profile")
		return
	}

	result, err := h.Orch.RunConversation(c.Request.Context(), conversation.RunInput{
		UserID:         uid,
		SessionUUID:    resolved.SessionUUID,
		PromptID:       req.PromptID,
		UserMessage:    req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		h.failConversationErr(c, err)
		return
	}

	common.OK(c, gin.H{
		"session_uuid":    resolved.SessionUUID,
		"conversation_id": result.ConversationID,
		"reply":           result.AssistantMessage,
	})
}

func (h *Handler) SendMessageStream(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	resolved, err := h.Resolver.Resolve(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to resolve profile")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	ctx := c.Request.Context()

	type outcome struct {
		result *conversation.RunResult
		err    error
	}

	chunks := make(chan string, 16)
	done := make(chan outcome, 1)

	go func() {
		result, err := h.Orch.StreamAssistantResponse(ctx, conversation.RunInput{
			UserID:         uid,
			SessionUUID:    resolved.SessionUUID,
			PromptID:       req.PromptID,
			UserMessage:    req.Message,
			ConversationID: req.ConversationID,
		}, func(delta string) {
			select {
			case chunks <- delta:
			case <-ctx.Done():
			}
		})
		close(chunks)
		done <- outcome{result: result, err: err}
	}()

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case delta, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			writeJSON("chunk", gin.H{"type": "chunk", "delta": delta})

		case <-ticker.C:
			writeJSON("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})

		case out := <-done:
			// flush anything buffered before the terminal event
			if chunks != nil {
				for delta := range chunks {
					writeJSON("chunk", gin.H{"type": "chunk", "delta": delta})
				}
			}
			if out.err != nil {
				msg := out.err.Error()
				if errors.Is(out.err, gorm.ErrRecordNotFound) {
					msg = "prompt not found"
				}
				writeJSON("error", gin.H{"type": "error", "message": msg})
				return
			}
			writeJSON("done", gin.H{
				"type":            "done",
				"conversation_id": out.result.ConversationID,
			})
			return

		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) SendMessageAsync(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	// Reject unknown prompts before queueing.
	if _, err := h.Conv.GetPromptWithContexts(c.Request.Context(), req.PromptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "prompt not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	resolved, err := h.Resolver.Resolve(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to resolve profile")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	job := &conversation.Job{
		ID:             jobID,
		UserID:         uid,
		SessionUUID:    resolved.SessionUUID,
		PromptID:       req.PromptID,
		Message:        req.Message,
		IdempotencyKey: idempoKeyPtr,
		Status:         conversation.JobQueued,
	}

	job, created, err := h.Conv.CreateJobOrGetExisting(c.Request.Context(), job)
	if err != nil {
		h.Logger.Error("create job failed", zap.Uint64("user_id", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// Enqueue only when a new job was created.
	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), job.ID); err != nil {
			h.Logger.Error("publish job failed", zap.String("job_id", job.ID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": job.ID})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	job, err := h.Conv.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if job.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{"job": job})
}
