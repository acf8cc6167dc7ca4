package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voicethink/coach/internal/profile"
)

// BuildInstructions assembles the full instruction text for a completion or
// realtime session. It is a pure function: the same inputs always produce the
// same text. Section order is fixed (system prompt, configured contexts,
// goals by category, conversation history, interaction log) and empty
// sections are dropped.
func BuildInstructions(systemPrompt string, contexts []PromptContext, goals []profile.Goal, history []Turn, interactionBlock string) string {
	var sections []string

	if len(contexts) > 0 {
		sections = append(sections, "Configured contexts:")
		for _, pc := range contexts {
			description := pc.Description
			if description == "" {
				description = "no description"
			}
			payload, err := json.Marshal(pc.ContextPayload)
			if err != nil {
				payload = []byte("{}")
			}
			sections = append(sections, fmt.Sprintf("- %s: %s. Payload: %s", pc.Name, description, payload))
		}
	}

	sections = append(sections, goalSections(goals)...)
	sections = append(sections, historySection(history)...)

	if interactionBlock != "" {
		sections = append(sections, interactionBlock)
	}

	parts := make([]string, 0, 2)
	if sp := strings.TrimSpace(systemPrompt); sp != "" {
		parts = append(parts, sp)
	}
	if len(sections) > 0 {
		parts = append(parts, strings.Join(sections, "\n\n"))
	}
	return strings.Join(parts, "\n\n")
}

// goalSections groups goals by their category label in first-seen order. The
// label is the grouping key: goals sharing the same category text land in one
// section regardless of any other state.
func goalSections(goals []profile.Goal) []string {
	if len(goals) == 0 {
		return nil
	}

	var order []string
	grouped := make(map[string][]profile.Goal)
	for _, g := range goals {
		category := profile.GoalCategory(g.GoalState)
		if _, seen := grouped[category]; !seen {
			order = append(order, category)
		}
		grouped[category] = append(grouped[category], g)
	}

	var sections []string
	for _, category := range order {
		sections = append(sections, fmt.Sprintf("Goals – %s:", category))
		for _, g := range grouped[category] {
			line := fmt.Sprintf("- %s [%s]", g.Title, g.Status)
			if g.Description != "" {
				line += " — " + g.Description
			}
			sections = append(sections, line)
		}
	}
	return sections
}

// historySection renders prior turns for the realtime-voice path, oldest
// first. An empty history omits the block entirely.
func historySection(history []Turn) []string {
	if len(history) == 0 {
		return nil
	}
	sections := make([]string, 0, len(history)+1)
	sections = append(sections, "Previous conversation transcript:")
	for _, turn := range history {
		sections = append(sections, fmt.Sprintf("- %s: %s", turn.Role, turn.Content))
	}
	return sections
}
