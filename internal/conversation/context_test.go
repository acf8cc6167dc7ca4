package conversation

import (
	"strings"
	"testing"

	"github.com/voicethink/coach/internal/common"
	"github.com/voicethink/coach/internal/profile"
)

func TestBuildInstructions_SectionOrder(t *testing.T) {
	contexts := []PromptContext{
		{Name: "tone", Description: "keep it warm", ContextPayload: common.JSONMap{"style": "casual"}},
	}
	goals := []profile.Goal{
		{Title: "Run 5k", Status: profile.GoalStatusActive, GoalState: common.JSONMap{"category": "Health"}},
	}
	history := []Turn{
		{Role: RoleUser, Content: "hi"},
	}

	text := BuildInstructions("Be a coach.", contexts, goals, history, "No prior interactions recorded.")

	wantOrder := []string{
		"Be a coach.",
		"Configured contexts:",
		"- tone: keep it warm. Payload: {\"style\":\"casual\"}",
		"Goals – Health:",
		"- Run 5k [active]",
		"Previous conversation transcript:",
		"- user: hi",
		"No prior interactions recorded.",
	}
	pos := -1
	for _, want := range wantOrder {
		idx := strings.Index(text, want)
		if idx < 0 {
			t.Fatalf("missing section %q in:\n%s", want, text)
		}
		if idx <= pos {
			t.Fatalf("section %q out of order in:\n%s", want, text)
		}
		pos = idx
	}

	// deterministic: same inputs, same text
	if again := BuildInstructions("Be a coach.", contexts, goals, history, "No prior interactions recorded."); again != text {
		t.Fatalf("instructions not deterministic")
	}
}

func TestBuildInstructions_EmptySectionsOmitted(t *testing.T) {
	text := BuildInstructions("Be a coach.", nil, nil, nil, "")
	if text != "Be a coach." {
		t.Fatalf("expected bare system prompt, got %q", text)
	}
	if strings.Contains(text, "Configured contexts:") ||
		strings.Contains(text, "Goals") ||
		strings.Contains(text, "Previous conversation transcript:") {
		t.Fatalf("empty sections must be dropped:\n%s", text)
	}
}

func TestBuildInstructions_GoalGroupingFirstSeenOrder(t *testing.T) {
	goals := []profile.Goal{
		{Title: "Run 5k", Status: profile.GoalStatusActive, GoalState: common.JSONMap{"category": "Health"}},
		{Title: "Read more", Status: profile.GoalStatusActive},
		{Title: "Sleep earlier", Status: profile.GoalStatusActive, GoalState: common.JSONMap{"category": "Health"}},
	}

	text := BuildInstructions("p", nil, goals, nil, "")

	healthIdx := strings.Index(text, "Goals – Health:")
	generalIdx := strings.Index(text, "Goals – General:")
	if healthIdx < 0 || generalIdx < 0 {
		t.Fatalf("expected both category sections:\n%s", text)
	}
	if healthIdx > generalIdx {
		t.Fatalf("categories must keep first-seen order:\n%s", text)
	}

	// both Health goals land in one section
	healthBlock := text[healthIdx:generalIdx]
	if !strings.Contains(healthBlock, "Run 5k") || !strings.Contains(healthBlock, "Sleep earlier") {
		t.Fatalf("expected Health goals grouped together:\n%s", healthBlock)
	}
}

func TestBuildInstructions_GoalDescription(t *testing.T) {
	goals := []profile.Goal{
		{Title: "Run 5k", Description: "train for spring", Status: profile.GoalStatusActive},
	}
	text := BuildInstructions("p", nil, goals, nil, "")
	if !strings.Contains(text, "- Run 5k [active] — train for spring") {
		t.Fatalf("expected goal line with description, got:\n%s", text)
	}
}
