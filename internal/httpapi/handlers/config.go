package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/voicethink/coach/internal/common"
	"github.com/voicethink/coach/internal/conversation"
)

func (h *Handler) ListPrompts(c *gin.Context) {
	prompts, err := h.Conv.ListPromptsWithContexts(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to list prompts")
		return
	}
	common.OK(c, gin.H{"prompts": prompts})
}

type savePromptReq struct {
	ID           string `json:"id" binding:"omitempty,uuid"`
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description" binding:"max=500"`
	SystemPrompt string `json:"system_prompt" binding:"required"`
	IsActive     *bool  `json:"is_active"`
}

// SavePrompt upserts the operator prompt. The oldest existing prompt is the
// singleton target of every save: its id wins over the submitted one.
func (h *Handler) SavePrompt(c *gin.Context) {
	var req savePromptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	targetID, err := h.Conv.OldestPromptID(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if targetID == "" {
		targetID = req.ID
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	prompt := &conversation.Prompt{
		ID:           targetID,
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		IsActive:     isActive,
	}
	if err := h.Conv.UpsertPrompt(c.Request.Context(), prompt); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to save prompt")
		return
	}

	common.OK(c, gin.H{"id": prompt.ID})
}

func (h *Handler) DeletePrompt(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "id required")
		return
	}
	if err := h.Conv.DeletePrompt(c.Request.Context(), id); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to delete prompt")
		return
	}
	common.OK(c, nil)
}

type savePromptContextReq struct {
	ID                string          `json:"id" binding:"omitempty,uuid"`
	PromptID          string          `json:"prompt_id" binding:"required,uuid"`
	Name              string          `json:"name" binding:"required"`
	Description       string          `json:"description"`
	ContextPayload    json.RawMessage `json:"context_payload"`
	AuxSchemaRequired bool            `json:"aux_schema_required"`
}

// parsePayload accepts either a JSON object or a string containing one; an
// empty value means an empty payload.
func parsePayload(raw json.RawMessage) (common.JSONMap, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return common.JSONMap{}, nil
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		if inner == "" {
			return common.JSONMap{}, nil
		}
		raw = json.RawMessage(inner)
	}

	var payload common.JSONMap
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.New("context payload must be valid JSON")
	}
	return payload, nil
}

func (h *Handler) SavePromptContext(c *gin.Context) {
	var req savePromptContextReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	payload, err := parsePayload(req.ContextPayload)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10005, err.Error())
		return
	}

	// The owning prompt must exist.
	if _, err := h.Conv.GetPromptWithContexts(c.Request.Context(), req.PromptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "prompt not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	pc := &conversation.PromptContext{
		ID:                req.ID,
		PromptID:          req.PromptID,
		Name:              req.Name,
		Description:       req.Description,
		ContextPayload:    payload,
		AuxSchemaRequired: req.AuxSchemaRequired,
	}
	if err := h.Conv.UpsertPromptContext(c.Request.Context(), pc); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to save prompt context")
		return
	}

	common.OK(c, gin.H{"id": pc.ID})
}

func (h *Handler) DeletePromptContext(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "id required")
		return
	}
	if err := h.Conv.DeletePromptContext(c.Request.Context(), id); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to delete prompt context")
		return
	}
	common.OK(c, nil)
}
