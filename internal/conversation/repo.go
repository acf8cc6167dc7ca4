package conversation

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// GetPromptWithContexts returns the prompt and its contexts ordered by
// creation. gorm.ErrRecordNotFound propagates for missing prompts.
func (r *Repo) GetPromptWithContexts(ctx context.Context, promptID string) (*Prompt, error) {
	var p Prompt
	err := r.db.WithContext(ctx).
		Preload("Contexts", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", promptID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// OldestPromptID returns the id of the first configured prompt, or "" when
// none exists. The config surface treats that prompt as the singleton target
// of every save.
func (r *Repo) OldestPromptID(ctx context.Context) (string, error) {
	var p Prompt
	err := r.db.WithContext(ctx).Order("created_at ASC").First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return p.ID, nil
}

func (r *Repo) ListPromptsWithContexts(ctx context.Context) ([]Prompt, error) {
	var prompts []Prompt
	err := r.db.WithContext(ctx).
		Preload("Contexts", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Order("created_at DESC").
		Find(&prompts).Error
	if err != nil {
		return nil, err
	}
	return prompts, nil
}

func (r *Repo) UpsertPrompt(ctx context.Context, p *Prompt) error {
	if p.ID == "" {
		return r.db.WithContext(ctx).Omit("Contexts").Create(p).Error
	}
	return r.db.WithContext(ctx).Omit("Contexts").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "system_prompt", "is_active", "updated_at"}),
	}).Create(p).Error
}

func (r *Repo) DeletePrompt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&Prompt{}, "id = ?", id).Error
}

func (r *Repo) UpsertPromptContext(ctx context.Context, pc *PromptContext) error {
	if pc.ID == "" {
		return r.db.WithContext(ctx).Create(pc).Error
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "context_payload", "aux_schema_required", "updated_at"}),
	}).Create(pc).Error
}

func (r *Repo) DeletePromptContext(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&PromptContext{}, "id = ?", id).Error
}

// FindActiveConversation returns the most recent active conversation for the
// (session, prompt) pair, or nil when none exists.
func (r *Repo) FindActiveConversation(ctx context.Context, sessionUUID, promptID string) (*Conversation, error) {
	var conv Conversation
	err := r.db.WithContext(ctx).
		Where("session_uuid = ? AND prompt_id = ? AND status = ?", sessionUUID, promptID, StatusActive).
		Order("created_at DESC").
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

func (r *Repo) CreateConversation(ctx context.Context, conv *Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *Repo) InsertTurn(ctx context.Context, turn *Turn) error {
	return r.db.WithContext(ctx).Create(turn).Error
}

func (r *Repo) InsertTurns(ctx context.Context, turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&turns).Error
}

// ListRecentTurns returns the most recent turns in ascending order.
func (r *Repo) ListRecentTurns(ctx context.Context, conversationID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	var turns []Turn
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	// reverse to ASC (oldest -> newest)
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// ListTranscript returns the conversation's turns oldest first, capped.
func (r *Repo) ListTranscript(ctx context.Context, conversationID string, limit int) ([]Turn, error) {
	var turns []Turn
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	return turns, nil
}
