package conversation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voicethink/coach/internal/common"
)

const (
	StatusActive    = "active"
	StatusArchived  = "archived"
	StatusCompleted = "completed"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Prompt is the operator-configured system instruction applied to every
// completion call. Read-only from the conversation path; the config surface
// owns mutation.
type Prompt struct {
	ID           string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string          `gorm:"type:varchar(255);not null" json:"name"`
	Description  string          `gorm:"type:varchar(500)" json:"description"`
	SystemPrompt string          `gorm:"type:text;not null" json:"system_prompt"`
	IsActive     bool            `gorm:"not null;default:true" json:"is_active"`
	Contexts     []PromptContext `gorm:"foreignKey:PromptID" json:"prompt_contexts"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Prompt) TableName() string { return "prompts" }

func (p *Prompt) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type PromptContext struct {
	ID                string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	PromptID          string         `gorm:"type:varchar(36);index;not null" json:"prompt_id"`
	Name              string         `gorm:"type:varchar(255);not null" json:"name"`
	Description       string         `gorm:"type:text" json:"description"`
	ContextPayload    common.JSONMap `gorm:"type:json" json:"context_payload"`
	AuxSchemaRequired bool           `gorm:"not null;default:false" json:"aux_schema_required"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (PromptContext) TableName() string { return "prompt_contexts" }

func (c *PromptContext) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Conversation is one thread per (session, prompt) pair. The orchestrator
// keeps at most one row active per pair.
type Conversation struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	SessionUUID string         `gorm:"type:varchar(36);index:idx_conv_session_prompt,priority:1;not null" json:"session_uuid"`
	PromptID    string         `gorm:"type:varchar(36);index:idx_conv_session_prompt,priority:2;not null" json:"prompt_id"`
	Status      string         `gorm:"type:varchar(16);index;not null" json:"status"`
	Metadata    common.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Turn is a single message in a conversation. The auto-increment id is the
// ordering key: it stays monotonic even when the clock's resolution collapses
// same-millisecond writes in a batch.
type Turn struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string         `gorm:"type:varchar(36);index;not null" json:"conversation_id"`
	SessionUUID    string         `gorm:"type:varchar(36);index;not null" json:"session_uuid"`
	Role           string         `gorm:"type:varchar(16);not null" json:"role"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Metadata       common.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (Turn) TableName() string { return "conversation_turns" }
