package conversation

import (
	"context"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/voicethink/coach/internal/ai"
	"github.com/voicethink/coach/internal/interactions"
	"github.com/voicethink/coach/internal/profile"
)

// recordingProvider answers the goal-extraction call with an empty result so
// reconciliation is a no-op, and every other call with the scripted reply.
type recordingProvider struct {
	reply string
	calls [][]ai.Message
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	// copy to avoid mutations
	p.calls = append(p.calls, append([]ai.Message(nil), messages...))
	if len(messages) > 0 && strings.Contains(messages[0].Content, "extract user goals") {
		return `{"goals":[]}`, nil
	}
	return p.reply, nil
}

// completionCalls filters out the extraction traffic.
func (p *recordingProvider) completionCalls() [][]ai.Message {
	var out [][]ai.Message
	for _, call := range p.calls {
		if len(call) > 0 && strings.Contains(call[0].Content, "extract user goals") {
			continue
		}
		out = append(out, call)
	}
	return out
}

type streamingProvider struct {
	recordingProvider
	chunks []string
}

func (p *streamingProvider) StreamChat(ctx context.Context, messages []ai.Message) (<-chan string, <-chan error) {
	_ = ctx
	p.calls = append(p.calls, append([]ai.Message(nil), messages...))
	out := make(chan string, len(p.chunks))
	errs := make(chan error, 1)
	for _, c := range p.chunks {
		out <- c
	}
	close(out)
	errs <- nil
	return out, errs
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&Prompt{}, &PromptContext{}, &Conversation{}, &Turn{}, &Job{},
		&profile.Session{}, &profile.UserProfile{}, &profile.Goal{},
	)
	if err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestOrchestrator(db *gorm.DB, prov ai.Provider, window int) (*Orchestrator, *Repo, *interactions.MemoryLog) {
	repo := NewRepo(db)
	profiles := profile.NewRepo(db)
	ilog := interactions.NewMemoryLog()
	extractor := profile.NewExtractor(profiles, prov, nil)
	metrics := profile.NewEngine(profiles, ilog)
	orch := NewOrchestrator(repo, profiles, ilog, prov, extractor, metrics, window, nil)
	return orch, repo, ilog
}

func seedPrompt(t *testing.T, db *gorm.DB, id string) *Prompt {
	t.Helper()
	p := &Prompt{
		ID:           id,
		Name:         "coach",
		SystemPrompt: "You are a supportive coach.",
		IsActive:     true,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed prompt: %v", err)
	}
	return p
}

func TestRunConversation_WritesUserAndAssistant(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: "keep going"}
	orch, _, ilog := newTestOrchestrator(db, prov, 20)

	prompt := seedPrompt(t, db, "11111111-0000-0000-0000-000000000001")

	res, err := orch.RunConversation(context.Background(), RunInput{
		UserID:      1,
		SessionUUID: "sess-run-1",
		PromptID:    prompt.ID,
		UserMessage: "Hello",
	})
	if err != nil {
		t.Fatalf("run conversation: %v", err)
	}
	if res.AssistantMessage != "keep going" {
		t.Fatalf("unexpected reply: %q", res.AssistantMessage)
	}
	if res.ConversationID == "" {
		t.Fatalf("expected conversation id to be set")
	}

	var turns []Turn
	if err := db.Where("conversation_id = ?", res.ConversationID).Order("id ASC").Find(&turns).Error; err != nil {
		t.Fatalf("query turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Content != "Hello" {
		t.Fatalf("unexpected user turn: role=%q content=%q", turns[0].Role, turns[0].Content)
	}
	if turns[1].Role != RoleAssistant || turns[1].Content != "keep going" {
		t.Fatalf("unexpected assistant turn: role=%q content=%q", turns[1].Role, turns[1].Content)
	}

	// both sides of the exchange land in the interaction log
	entries, err := ilog.All(context.Background(), 1)
	if err != nil {
		t.Fatalf("log all: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Role != interactions.RoleUser || entries[1].Role != interactions.RoleAssistant {
		t.Fatalf("unexpected log roles: %q then %q", entries[0].Role, entries[1].Role)
	}

	calls := prov.completionCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 completion call, got %d", len(calls))
	}
	msgs := calls[0]
	if msgs[0].Role != RoleSystem || !strings.Contains(msgs[0].Content, "supportive coach") {
		t.Fatalf("expected system instructions first, got role=%q", msgs[0].Role)
	}
	if last := msgs[len(msgs)-1]; last.Role != RoleUser || last.Content != "Hello" {
		t.Fatalf("expected user message last, got role=%q content=%q", last.Role, last.Content)
	}
}

func TestRunConversation_EmptyReplyFallback(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: "   "}
	orch, _, _ := newTestOrchestrator(db, prov, 20)

	prompt := seedPrompt(t, db, "11111111-0000-0000-0000-000000000002")

	res, err := orch.RunConversation(context.Background(), RunInput{
		UserID:      2,
		SessionUUID: "sess-run-2",
		PromptID:    prompt.ID,
		UserMessage: "Hi",
	})
	if err != nil {
		t.Fatalf("run conversation: %v", err)
	}
	if res.AssistantMessage != FallbackAssistantMessage {
		t.Fatalf("expected fallback reply, got %q", res.AssistantMessage)
	}

	var turn Turn
	if err := db.Where("conversation_id = ? AND role = ?", res.ConversationID, RoleAssistant).First(&turn).Error; err != nil {
		t.Fatalf("query assistant turn: %v", err)
	}
	if turn.Content != FallbackAssistantMessage {
		t.Fatalf("expected fallback persisted, got %q", turn.Content)
	}
}

func TestRunConversation_MissingPrompt(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: "ok"}
	orch, _, _ := newTestOrchestrator(db, prov, 20)

	_, err := orch.RunConversation(context.Background(), RunInput{
		UserID:      3,
		SessionUUID: "sess-run-3",
		PromptID:    "11111111-0000-0000-0000-00000000dead",
		UserMessage: "Hi",
	})
	if err == nil {
		t.Fatalf("expected error for missing prompt")
	}
	if len(prov.completionCalls()) != 0 {
		t.Fatalf("model must not be called when the prompt is missing")
	}
}

func TestEnsureConversation_ReusesActive(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: "ok"}
	orch, _, _ := newTestOrchestrator(db, prov, 20)

	first, err := orch.EnsureConversation(context.Background(), "sess-ensure-1", "prompt-a", nil)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := orch.EnsureConversation(context.Background(), "sess-ensure-1", "prompt-a", nil)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if first != second {
		t.Fatalf("expected the active conversation to be reused, got %q then %q", first, second)
	}

	var count int64
	if err := db.Model(&Conversation{}).Where("session_uuid = ?", "sess-ensure-1").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 conversation, got %d", count)
	}
}

func TestRunConversation_HistoryWindow(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: "ok"}
	window := 3
	orch, repo, _ := newTestOrchestrator(db, prov, window)

	prompt := seedPrompt(t, db, "11111111-0000-0000-0000-000000000004")

	convID, err := orch.EnsureConversation(context.Background(), "sess-run-4", prompt.ID, nil)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// seed 5 prior turns; only the most recent 3 may reach the model
	contents := []string{"t1", "t2", "t3", "t4", "t5"}
	for _, c := range contents {
		err := repo.InsertTurn(context.Background(), &Turn{
			ConversationID: convID,
			SessionUUID:    "sess-run-4",
			Role:           RoleUser,
			Content:        c,
		})
		if err != nil {
			t.Fatalf("seed turn: %v", err)
		}
	}

	_, err = orch.RunConversation(context.Background(), RunInput{
		UserID:         4,
		SessionUUID:    "sess-run-4",
		PromptID:       prompt.ID,
		UserMessage:    "now",
		ConversationID: convID,
	})
	if err != nil {
		t.Fatalf("run conversation: %v", err)
	}

	calls := prov.completionCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 completion call, got %d", len(calls))
	}
	msgs := calls[0]
	// system + 3 history + new user message
	if len(msgs) != window+2 {
		t.Fatalf("expected %d messages, got %d", window+2, len(msgs))
	}
	for i, want := range []string{"t3", "t4", "t5"} {
		if got := msgs[1+i].Content; got != want {
			t.Fatalf("history[%d]: expected %q, got %q", i, want, got)
		}
	}
	if msgs[len(msgs)-1].Content != "now" {
		t.Fatalf("expected new message last, got %q", msgs[len(msgs)-1].Content)
	}
}

func TestStreamAssistantResponse_DeltasAndPersist(t *testing.T) {
	db := openTestDB(t)
	prov := &streamingProvider{chunks: []string{"Hel", "lo"}}
	orch, _, _ := newTestOrchestrator(db, prov, 20)

	prompt := seedPrompt(t, db, "11111111-0000-0000-0000-000000000005")

	var deltas []string
	res, err := orch.StreamAssistantResponse(context.Background(), RunInput{
		UserID:      5,
		SessionUUID: "sess-run-5",
		PromptID:    prompt.ID,
		UserMessage: "stream it",
	}, func(delta string) {
		deltas = append(deltas, delta)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Fatalf("unexpected deltas: %v", deltas)
	}
	if res.AssistantMessage != "Hello" {
		t.Fatalf("expected accumulated reply, got %q", res.AssistantMessage)
	}

	var turn Turn
	if err := db.Where("conversation_id = ? AND role = ?", res.ConversationID, RoleAssistant).First(&turn).Error; err != nil {
		t.Fatalf("query assistant turn: %v", err)
	}
	if turn.Content != "Hello" {
		t.Fatalf("expected %q persisted, got %q", "Hello", turn.Content)
	}
}

func TestLogVoiceEntries_PersistsBatchInOrder(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: "ok"}
	orch, _, ilog := newTestOrchestrator(db, prov, 20)

	convID, err := orch.LogVoiceEntries(context.Background(), VoiceLogInput{
		UserID:      6,
		SessionUUID: "sess-voice-1",
		PromptID:    "prompt-voice",
		Entries: []VoiceEntry{
			{Role: RoleUser, Content: "first"},
			{Role: RoleAssistant, Content: "second"},
			{Role: RoleUser, Content: "third"},
		},
	})
	if err != nil {
		t.Fatalf("log voice: %v", err)
	}

	var turns []Turn
	if err := db.Where("conversation_id = ?", convID).Order("id ASC").Find(&turns).Error; err != nil {
		t.Fatalf("query turns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, want := range []string{"first", "second", "third"} {
		if turns[i].Content != want {
			t.Fatalf("turn[%d]: expected %q, got %q", i, want, turns[i].Content)
		}
	}
	if src, _ := turns[0].Metadata.StringField("source"); src != "voice" {
		t.Fatalf("expected voice source metadata, got %q", src)
	}

	// the realtime transport already produced the assistant text, so the
	// ingest path must not call the completion model
	if len(prov.completionCalls()) != 0 {
		t.Fatalf("voice ingest must not call the completion model")
	}

	entries, err := ilog.All(context.Background(), 6)
	if err != nil {
		t.Fatalf("log all: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
}

func TestVoiceInstructions_IncludesTranscript(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: "ok"}
	orch, repo, _ := newTestOrchestrator(db, prov, 20)

	prompt := seedPrompt(t, db, "11111111-0000-0000-0000-000000000007")

	convID, err := orch.EnsureConversation(context.Background(), "sess-voice-2", prompt.ID, nil)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	err = repo.InsertTurn(context.Background(), &Turn{
		ConversationID: convID,
		SessionUUID:    "sess-voice-2",
		Role:           RoleUser,
		Content:        "I want to run a marathon",
	})
	if err != nil {
		t.Fatalf("seed turn: %v", err)
	}

	text, err := orch.VoiceInstructions(context.Background(), 7, "sess-voice-2", prompt.ID)
	if err != nil {
		t.Fatalf("voice instructions: %v", err)
	}
	if !strings.Contains(text, "supportive coach") {
		t.Fatalf("expected system prompt in instructions")
	}
	if !strings.Contains(text, "Previous conversation transcript:") {
		t.Fatalf("expected transcript block in instructions")
	}
	if !strings.Contains(text, "- user: I want to run a marathon") {
		t.Fatalf("expected prior turn rendered, got:\n%s", text)
	}
}
