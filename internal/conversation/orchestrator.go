package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voicethink/coach/internal/ai"
	"github.com/voicethink/coach/internal/common"
	"github.com/voicethink/coach/internal/interactions"
	"github.com/voicethink/coach/internal/profile"
)

const (
	// MaxHistoryTurns bounds how many prior turns a completion call sees.
	MaxHistoryTurns = 20
	// MaxContextLogEntries bounds the interaction-log block.
	MaxContextLogEntries = 50
	// MaxVoiceHistoryTurns bounds the transcript block in voice instructions.
	MaxVoiceHistoryTurns = 40
	// MaxTranscriptTurns bounds the transcript handed to goal extraction.
	MaxTranscriptTurns = 200

	// FallbackAssistantMessage replaces an empty model reply so the stored
	// exchange never contains a blank assistant turn.
	FallbackAssistantMessage = "I did not receive a response."
)

type RunInput struct {
	UserID         uint64
	SessionUUID    string
	PromptID       string
	UserMessage    string
	ConversationID string
}

type RunResult struct {
	ConversationID   string
	AssistantMessage string
}

type VoiceEntry struct {
	Role    string
	Content string
}

type VoiceLogInput struct {
	UserID      uint64
	SessionUUID string
	PromptID    string
	Entries     []VoiceEntry
}

// Orchestrator owns the conversation/turn lifecycle: it assembles context,
// drives the completion capability, persists both sides of each exchange and
// kicks off the post-turn goal/metrics reconciliation.
type Orchestrator struct {
	repo          *Repo
	profiles      *profile.Repo
	log           interactions.Log
	provider      ai.Provider
	goals         *profile.Extractor
	metrics       *profile.Engine
	historyWindow int
	logger        *zap.Logger
}

func NewOrchestrator(
	repo *Repo,
	profiles *profile.Repo,
	log interactions.Log,
	provider ai.Provider,
	goals *profile.Extractor,
	metrics *profile.Engine,
	historyWindow int,
	logger *zap.Logger,
) *Orchestrator {
	if historyWindow <= 0 || historyWindow > 100 {
		historyWindow = MaxHistoryTurns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		repo:          repo,
		profiles:      profiles,
		log:           log,
		provider:      provider,
		goals:         goals,
		metrics:       metrics,
		historyWindow: historyWindow,
		logger:        logger,
	}
}

// EnsureConversation returns the most recent active conversation for the
// (session, prompt) pair, creating one when absent. Preferring the existing
// match over inserting keeps repeated calls from piling up duplicates.
func (o *Orchestrator) EnsureConversation(ctx context.Context, sessionUUID, promptID string, metadata common.JSONMap) (string, error) {
	existing, err := o.repo.FindActiveConversation(ctx, sessionUUID, promptID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	if metadata == nil {
		metadata = common.JSONMap{}
	}
	conv := &Conversation{
		SessionUUID: sessionUUID,
		PromptID:    promptID,
		Status:      StatusActive,
		Metadata:    metadata,
	}
	if err := o.repo.CreateConversation(ctx, conv); err != nil {
		return "", err
	}
	return conv.ID, nil
}

type prepared struct {
	conversationID string
	messages       []ai.Message
}

// prepareTurn loads everything a completion call needs and persists the new
// user turn before the model is consulted, so a provider failure still leaves
// the user's message recorded.
func (o *Orchestrator) prepareTurn(ctx context.Context, input RunInput) (*prepared, error) {
	prompt, err := o.repo.GetPromptWithContexts(ctx, input.PromptID)
	if err != nil {
		return nil, err
	}

	goals, err := o.profiles.ListActiveGoals(ctx, input.SessionUUID)
	if err != nil {
		return nil, err
	}

	entries, err := o.log.Recent(ctx, input.UserID, MaxContextLogEntries)
	if err != nil {
		return nil, err
	}
	interactionBlock := interactions.BuildContext(entries)

	conversationID := input.ConversationID
	if conversationID == "" {
		conversationID, err = o.EnsureConversation(ctx, input.SessionUUID, input.PromptID, nil)
		if err != nil {
			return nil, err
		}
	}

	history, err := o.repo.ListRecentTurns(ctx, conversationID, o.historyWindow)
	if err != nil {
		return nil, err
	}

	if err := o.repo.InsertTurn(ctx, &Turn{
		ConversationID: conversationID,
		SessionUUID:    input.SessionUUID,
		Role:           RoleUser,
		Content:        input.UserMessage,
		CreatedAt:      time.Now(),
	}); err != nil {
		return nil, err
	}

	system := BuildInstructions(prompt.SystemPrompt, prompt.Contexts, goals, nil, interactionBlock)

	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{Role: RoleSystem, Content: system})
	messages = append(messages, turnsToMessages(history)...)
	messages = append(messages, ai.Message{Role: RoleUser, Content: input.UserMessage})

	return &prepared{conversationID: conversationID, messages: messages}, nil
}

// RunConversation executes one blocking exchange: persist the user turn, call
// the model, persist the (possibly fallback) assistant turn, then reconcile
// goals and metrics.
func (o *Orchestrator) RunConversation(ctx context.Context, input RunInput) (*RunResult, error) {
	prep, err := o.prepareTurn(ctx, input)
	if err != nil {
		return nil, err
	}

	o.appendInteraction(ctx, input.UserID, interactions.RoleUser, input.UserMessage)

	reply, err := o.provider.Chat(ctx, prep.messages)
	if err != nil {
		return nil, err
	}

	return o.finalizeAssistantTurn(ctx, input, prep.conversationID, reply)
}

// StreamAssistantResponse runs the same exchange against the streaming
// capability, invoking onDelta for every fragment in arrival order. The
// accumulated text then takes the same fallback/persist/reconcile path as the
// blocking variant.
func (o *Orchestrator) StreamAssistantResponse(ctx context.Context, input RunInput, onDelta func(delta string)) (*RunResult, error) {
	sp, ok := o.provider.(ai.StreamProvider)
	if !ok {
		return nil, errors.New("provider does not support streaming")
	}

	prep, err := o.prepareTurn(ctx, input)
	if err != nil {
		return nil, err
	}

	o.appendInteraction(ctx, input.UserID, interactions.RoleUser, input.UserMessage)

	chunks, errs := sp.StreamChat(ctx, prep.messages)

	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
		if onDelta != nil {
			onDelta(c)
		}
	}
	if err := <-errs; err != nil {
		return nil, err
	}

	return o.finalizeAssistantTurn(ctx, input, prep.conversationID, b.String())
}

func (o *Orchestrator) finalizeAssistantTurn(ctx context.Context, input RunInput, conversationID, reply string) (*RunResult, error) {
	assistantText := strings.TrimSpace(reply)
	if assistantText == "" {
		assistantText = FallbackAssistantMessage
	}

	if err := o.repo.InsertTurn(ctx, &Turn{
		ConversationID: conversationID,
		SessionUUID:    input.SessionUUID,
		Role:           RoleAssistant,
		Content:        assistantText,
		CreatedAt:      time.Now(),
	}); err != nil {
		return nil, err
	}

	o.appendInteraction(ctx, input.UserID, interactions.RoleAssistant, assistantText)
	o.reconcile(ctx, input.UserID, input.SessionUUID, conversationID)

	return &RunResult{ConversationID: conversationID, AssistantMessage: assistantText}, nil
}

// LogVoiceEntries ingests a batch of already-transcribed voice turns. The
// realtime transport produced the assistant text out-of-band, so no
// completion call happens here; the batch is persisted with monotonically
// increasing timestamps and then reconciled like any other turn.
func (o *Orchestrator) LogVoiceEntries(ctx context.Context, input VoiceLogInput) (string, error) {
	conversationID, err := o.EnsureConversation(ctx, input.SessionUUID, input.PromptID, common.JSONMap{"source": "voice"})
	if err != nil {
		return "", err
	}

	now := time.Now()
	turns := make([]Turn, 0, len(input.Entries))
	for i, entry := range input.Entries {
		turns = append(turns, Turn{
			ConversationID: conversationID,
			SessionUUID:    input.SessionUUID,
			Role:           entry.Role,
			Content:        entry.Content,
			Metadata:       common.JSONMap{"source": "voice"},
			CreatedAt:      now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	if err := o.repo.InsertTurns(ctx, turns); err != nil {
		return "", err
	}

	for i, entry := range input.Entries {
		if err := o.log.Append(ctx, input.UserID, interactions.Entry{
			Timestamp: now.Add(time.Duration(i) * time.Millisecond),
			Role:      entry.Role,
			Content:   entry.Content,
		}); err != nil {
			o.logger.Warn("interaction append failed", zap.Uint64("user_id", input.UserID), zap.Error(err))
		}
	}

	o.reconcile(ctx, input.UserID, input.SessionUUID, conversationID)

	return conversationID, nil
}

// VoiceInstructions assembles the instruction text handed to a realtime voice
// session: the regular context plus the transcript of the active
// conversation, most recent turns capped.
func (o *Orchestrator) VoiceInstructions(ctx context.Context, userID uint64, sessionUUID, promptID string) (string, error) {
	var history []Turn
	if conv, err := o.repo.FindActiveConversation(ctx, sessionUUID, promptID); err != nil {
		return "", err
	} else if conv != nil {
		history, err = o.repo.ListRecentTurns(ctx, conv.ID, MaxVoiceHistoryTurns)
		if err != nil {
			return "", err
		}
	}

	prompt, err := o.repo.GetPromptWithContexts(ctx, promptID)
	if err != nil {
		return "", err
	}

	goals, err := o.profiles.ListActiveGoals(ctx, sessionUUID)
	if err != nil {
		return "", err
	}

	entries, err := o.log.Recent(ctx, userID, MaxContextLogEntries)
	if err != nil {
		return "", err
	}

	return BuildInstructions(prompt.SystemPrompt, prompt.Contexts, goals, history, interactions.BuildContext(entries)), nil
}

// appendInteraction is best-effort: the relational turn is the primary
// record, so a log hiccup must not fail the exchange.
func (o *Orchestrator) appendInteraction(ctx context.Context, userID uint64, role, content string) {
	err := o.log.Append(ctx, userID, interactions.Entry{
		Timestamp: time.Now(),
		Role:      role,
		Content:   content,
	})
	if err != nil {
		o.logger.Warn("interaction append failed", zap.Uint64("user_id", userID), zap.Error(err))
	}
}

// reconcile runs goal extraction and the metrics refresh after a persisted
// exchange. Both are isolated: their failure never rolls back the turn.
func (o *Orchestrator) reconcile(ctx context.Context, userID uint64, sessionUUID, conversationID string) {
	transcript, err := o.repo.ListTranscript(ctx, conversationID, MaxTranscriptTurns)
	if err != nil {
		o.logger.Warn("transcript load failed", zap.String("conversation_id", conversationID), zap.Error(err))
	} else if err := o.goals.SyncFromTranscript(ctx, sessionUUID, turnsToMessages(transcript)); err != nil {
		o.logger.Warn("goal extraction failed", zap.String("session_uuid", sessionUUID), zap.Error(err))
	}

	if err := o.metrics.Update(ctx, userID, sessionUUID); err != nil {
		o.logger.Warn("metrics update failed", zap.Uint64("user_id", userID), zap.Error(err))
	}
}

func turnsToMessages(turns []Turn) []ai.Message {
	out := make([]ai.Message, 0, len(turns))
	for _, turn := range turns {
		role := RoleAssistant
		if turn.Role == RoleUser {
			role = RoleUser
		}
		out = append(out, ai.Message{Role: role, Content: turn.Content})
	}
	return out
}
