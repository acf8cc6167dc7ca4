package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicethink/coach/internal/interactions"
)

func TestResolve_MintsAndConverges(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	resolver := NewResolver(repo)

	ctx := context.Background()
	userID := uint64(77)

	first, err := resolver.Resolve(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionUUID)
	assert.Equal(t, interactions.Key(userID), first.InteractionKey)
	assert.Nil(t, first.Data)
	assert.Nil(t, first.Metrics)

	// a session row is minted alongside the identity
	sess, err := repo.GetSessionByUUID(ctx, first.SessionUUID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.False(t, sess.LastSeenAt.IsZero())

	// repeated resolution converges on the same identity
	second, err := resolver.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.SessionUUID, second.SessionUUID)
	assert.Equal(t, first.InteractionKey, second.InteractionKey)

	var count int64
	require.NoError(t, db.Model(&Session{}).Where("session_uuid = ?", first.SessionUUID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestResolve_ReturnsCachedSnapshotsVerbatim(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	resolver := NewResolver(repo)

	ctx := context.Background()
	userID := uint64(78)

	first, err := resolver.Resolve(ctx, userID)
	require.NoError(t, err)

	data := ProfileData{Goals: []GoalSnapshot{{Title: "Run 5k", Status: GoalStatusActive}}}
	metrics := ProfileMetrics{GoalCounts: GoalCounts{Active: 1}}
	require.NoError(t, repo.UpsertProfileSnapshot(ctx, &UserProfile{
		UserID:         userID,
		SessionUUID:    first.SessionUUID,
		InteractionKey: first.InteractionKey,
		ProfileData:    &data,
		Metrics:        &metrics,
	}))

	// resolution returns the cached snapshot without recomputing it
	resolved, err := resolver.Resolve(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, resolved.Data)
	require.NotNil(t, resolved.Metrics)
	assert.Equal(t, "Run 5k", resolved.Data.Goals[0].Title)
	assert.Equal(t, 1, resolved.Metrics.GoalCounts.Active)
}
