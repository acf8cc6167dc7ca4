package profile

import (
	"context"
	"time"

	"github.com/voicethink/coach/internal/interactions"
)

const day = 24 * time.Hour

// computeWindowStats counts entries falling in [now-w, now) against the
// preceding window [now-2w, now-w). A timestamp exactly at now-w belongs to
// the current window.
func computeWindowStats(timestamps []time.Time, now time.Time, days int) WindowStats {
	window := time.Duration(days) * day
	currentStart := now.Add(-window)
	previousStart := now.Add(-2 * window)

	var current, previous int
	for _, ts := range timestamps {
		switch {
		case !ts.Before(currentStart):
			current++
		case !ts.Before(previousStart):
			previous++
		}
	}

	return WindowStats{
		Count:         current,
		PreviousCount: previous,
		Delta:         current - previous,
	}
}

func calculateInteractionMetrics(timestamps []time.Time, now time.Time) InteractionMetrics {
	return InteractionMetrics{
		Last3Days:  computeWindowStats(timestamps, now, 3),
		Last7Days:  computeWindowStats(timestamps, now, 7),
		Last30Days: computeWindowStats(timestamps, now, 30),
	}
}

// summarizeGoalCounts tallies active/completed/paused. Goals in any other
// status (archived included) are left out of this summary.
func summarizeGoalCounts(goals []Goal) GoalCounts {
	var counts GoalCounts
	for _, g := range goals {
		switch g.Status {
		case GoalStatusActive:
			counts.Active++
		case GoalStatusCompleted:
			counts.Completed++
		case GoalStatusPaused:
			counts.Paused++
		}
	}
	return counts
}

func countGoalChanges(goals []Goal, now time.Time, days int) int {
	threshold := now.Add(-time.Duration(days) * day)
	count := 0
	for _, g := range goals {
		changedAt := g.UpdatedAt
		if changedAt.IsZero() {
			changedAt = g.CreatedAt
		}
		if changedAt.IsZero() {
			continue
		}
		if !changedAt.Before(threshold) {
			count++
		}
	}
	return count
}

func summarizeGoalChanges(goals []Goal, now time.Time) GoalChangeMetrics {
	return GoalChangeMetrics{
		Last3Days:  countGoalChanges(goals, now, 3),
		Last7Days:  countGoalChanges(goals, now, 7),
		Last30Days: countGoalChanges(goals, now, 30),
	}
}

func serializeGoals(goals []Goal) []GoalSnapshot {
	snapshots := make([]GoalSnapshot, 0, len(goals))
	for _, g := range goals {
		snapshots = append(snapshots, GoalSnapshot{
			ID:          g.ID,
			Title:       g.Title,
			Description: g.Description,
			Status:      g.Status,
			GoalState:   g.GoalState,
			CreatedAt:   g.CreatedAt,
			UpdatedAt:   g.UpdatedAt,
		})
	}
	return snapshots
}

// Engine recomputes the cached per-user profile snapshot from the interaction
// log and the goal table. The snapshot is a derived cache: a lost write is
// repaired by the next recomputation.
type Engine struct {
	repo *Repo
	log  interactions.Log
}

func NewEngine(repo *Repo, log interactions.Log) *Engine {
	return &Engine{repo: repo, log: log}
}

func (e *Engine) Update(ctx context.Context, userID uint64, sessionUUID string) error {
	entries, err := e.log.All(ctx, userID)
	if err != nil {
		return err
	}
	timestamps := make([]time.Time, 0, len(entries))
	for _, entry := range entries {
		timestamps = append(timestamps, entry.Timestamp)
	}

	goals, err := e.repo.ListGoals(ctx, sessionUUID)
	if err != nil {
		return err
	}

	now := time.Now()
	data := ProfileData{Goals: serializeGoals(goals)}
	metrics := ProfileMetrics{
		Interactions: calculateInteractionMetrics(timestamps, now),
		GoalCounts:   summarizeGoalCounts(goals),
		GoalChanges:  summarizeGoalChanges(goals, now),
	}

	return e.repo.UpsertProfileSnapshot(ctx, &UserProfile{
		UserID:         userID,
		SessionUUID:    sessionUUID,
		InteractionKey: interactions.Key(userID),
		ProfileData:    &data,
		Metrics:        &metrics,
	})
}
