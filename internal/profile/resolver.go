package profile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/voicethink/coach/internal/common"
	"github.com/voicethink/coach/internal/interactions"
)

// SessionProfile is the resolved identity handed to every turn: the durable
// session uuid, the interaction-log reference, and whatever snapshots were
// cached by the last metrics run. Snapshots are returned verbatim; resolution
// never recomputes them.
type SessionProfile struct {
	SessionUUID    string          `json:"session_uuid"`
	InteractionKey string          `json:"interaction_key"`
	Data           *ProfileData    `json:"profile_data"`
	Metrics        *ProfileMetrics `json:"metrics"`
}

type Resolver struct {
	repo *Repo
}

func NewResolver(repo *Repo) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve maps a user to a stable session identity, minting one on first use.
// It always re-upserts the profile binding, so repeated calls converge to the
// same session uuid.
func (r *Resolver) Resolve(ctx context.Context, userID uint64) (*SessionProfile, error) {
	existing, err := r.repo.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &SessionProfile{}
	if existing != nil {
		out.SessionUUID = existing.SessionUUID
		out.InteractionKey = existing.InteractionKey
		out.Data = existing.ProfileData
		out.Metrics = existing.Metrics
	}
	if out.SessionUUID == "" {
		out.SessionUUID = uuid.NewString()
	}
	if out.InteractionKey == "" {
		out.InteractionKey = interactions.Key(userID)
	}

	if err := r.ensureSessionRecord(ctx, out.SessionUUID, userID); err != nil {
		return nil, err
	}

	if err := r.repo.UpsertProfileIdentity(ctx, userID, out.SessionUUID, out.InteractionKey); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *Resolver) ensureSessionRecord(ctx context.Context, sessionUUID string, userID uint64) error {
	metadata := common.JSONMap{"user_id": userID}

	existing, err := r.repo.GetSessionByUUID(ctx, sessionUUID)
	if err != nil {
		return err
	}
	if existing != nil {
		return r.repo.TouchSession(ctx, sessionUUID, metadata)
	}
	return r.repo.CreateSession(ctx, &Session{
		SessionUUID: sessionUUID,
		Metadata:    metadata,
		LastSeenAt:  time.Now(),
	})
}
