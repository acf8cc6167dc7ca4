package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/voicethink/coach/internal/ai"
	"github.com/voicethink/coach/internal/common"
)

// MaxExtractedGoals caps how many goals a single extraction may touch.
const MaxExtractedGoals = 10

const extractionInstruction = `You extract user goals from a conversation transcript. Respond ONLY with JSON matching the schema {"goals": [{"title": string, "description": string|null, "category": string|null, "status": string|null}]}. If no goals, return {"goals":[]}. Use concise titles. Category should capture the primary theme (e.g., Health, Career). Status should be active unless the user clearly completed or archived the goal.`

// jsonTail matches a greedy object anchored at the end of the response, so a
// model that prefixes prose before the JSON still parses.
var jsonTail = regexp.MustCompile(`(?s)\{.*\}$`)

type extractedGoal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Status      string `json:"status"`
}

type extractionResult struct {
	Goals []extractedGoal `json:"goals"`
}

func parseExtraction(content string) []extractedGoal {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	raw := content
	if match := jsonTail.FindString(content); match != "" {
		raw = match
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		if raw == content {
			return nil
		}
		if err := json.Unmarshal([]byte(content), &result); err != nil {
			return nil
		}
	}
	return result.Goals
}

func normalizeStatus(input string) string {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case GoalStatusActive:
		return GoalStatusActive
	case GoalStatusCompleted:
		return GoalStatusCompleted
	case GoalStatusArchived:
		return GoalStatusArchived
	default:
		return GoalStatusActive
	}
}

func normalizeGoals(raw []extractedGoal) []extractedGoal {
	out := make([]extractedGoal, 0, len(raw))
	for _, g := range raw {
		title := strings.TrimSpace(g.Title)
		if title == "" {
			continue
		}
		category := strings.TrimSpace(g.Category)
		if category == "" {
			category = "General"
		}
		out = append(out, extractedGoal{
			Title:       title,
			Description: strings.TrimSpace(g.Description),
			Category:    category,
			Status:      normalizeStatus(g.Status),
		})
		if len(out) == MaxExtractedGoals {
			break
		}
	}
	return out
}

// Extractor asks the model to pull goals out of a transcript and reconciles
// them into the session's goal records. Failures here are deliberately
// silent toward the end user: a missed extraction must never break the
// exchange that triggered it.
type Extractor struct {
	repo     *Repo
	provider ai.Provider
	logger   *zap.Logger
}

func NewExtractor(repo *Repo, provider ai.Provider, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{repo: repo, provider: provider, logger: logger}
}

// SyncFromTranscript runs one extraction over the turns (oldest first) and
// merges the result by case-insensitive title match: matches are updated in
// place, the rest are inserted. Last write wins within a batch.
func (e *Extractor) SyncFromTranscript(ctx context.Context, sessionUUID string, turns []ai.Message) error {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role, turn.Content))
	}
	transcript := strings.TrimSpace(strings.Join(lines, "\n"))
	if transcript == "" {
		return nil
	}

	reply, err := e.provider.Chat(ctx, []ai.Message{
		{Role: "system", Content: extractionInstruction},
		{Role: "user", Content: "Conversation transcript:\n" + transcript},
	})
	if err != nil {
		return err
	}

	goals := normalizeGoals(parseExtraction(reply))
	if len(goals) == 0 {
		return nil
	}

	existing, err := e.repo.ListGoals(ctx, sessionUUID)
	if err != nil {
		return err
	}
	byTitle := make(map[string]*Goal, len(existing))
	for i := range existing {
		byTitle[strings.ToLower(existing[i].Title)] = &existing[i]
	}

	var inserts []Goal
	for _, g := range goals {
		state := common.JSONMap{"category": g.Category}
		if match, ok := byTitle[strings.ToLower(g.Title)]; ok {
			if err := e.repo.UpdateGoal(ctx, match.ID, g.Description, state, g.Status); err != nil {
				return err
			}
			continue
		}
		inserts = append(inserts, Goal{
			SessionUUID: sessionUUID,
			Title:       g.Title,
			Description: g.Description,
			GoalState:   state,
			Status:      g.Status,
		})
	}

	if err := e.repo.CreateGoals(ctx, inserts); err != nil {
		return err
	}

	e.logger.Debug("goal extraction applied",
		zap.String("session_uuid", sessionUUID),
		zap.Int("updated", len(goals)-len(inserts)),
		zap.Int("inserted", len(inserts)),
	)
	return nil
}
