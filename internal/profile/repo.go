package profile

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voicethink/coach/internal/common"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetProfileByUserID(ctx context.Context, userID uint64) (*UserProfile, error) {
	var p UserProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UpsertProfileIdentity binds userID to its session identity without touching
// the cached profile/metrics snapshots.
func (r *Repo) UpsertProfileIdentity(ctx context.Context, userID uint64, sessionUUID, interactionKey string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"session_uuid", "interaction_key", "updated_at"}),
	}).Create(&UserProfile{
		UserID:         userID,
		SessionUUID:    sessionUUID,
		InteractionKey: interactionKey,
	}).Error
}

// UpsertProfileSnapshot replaces the cached profile data and metrics.
func (r *Repo) UpsertProfileSnapshot(ctx context.Context, p *UserProfile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"session_uuid", "interaction_key", "profile_data", "metrics", "updated_at"}),
	}).Create(p).Error
}

func (r *Repo) GetSessionByUUID(ctx context.Context, sessionUUID string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).Where("session_uuid = ?", sessionUUID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// TouchSession refreshes last-seen and metadata on every resolution.
func (r *Repo) TouchSession(ctx context.Context, sessionUUID string, metadata common.JSONMap) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("session_uuid = ?", sessionUUID).
		Updates(map[string]any{
			"last_seen_at": time.Now(),
			"metadata":     metadata,
		}).Error
}

func (r *Repo) ListGoals(ctx context.Context, sessionUUID string) ([]Goal, error) {
	var goals []Goal
	err := r.db.WithContext(ctx).
		Where("session_uuid = ?", sessionUUID).
		Order("created_at ASC").
		Find(&goals).Error
	if err != nil {
		return nil, err
	}
	return goals, nil
}

func (r *Repo) ListActiveGoals(ctx context.Context, sessionUUID string) ([]Goal, error) {
	var goals []Goal
	err := r.db.WithContext(ctx).
		Where("session_uuid = ? AND status = ?", sessionUUID, GoalStatusActive).
		Order("created_at ASC").
		Find(&goals).Error
	if err != nil {
		return nil, err
	}
	return goals, nil
}

func (r *Repo) CreateGoals(ctx context.Context, goals []Goal) error {
	if len(goals) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&goals).Error
}

func (r *Repo) UpdateGoal(ctx context.Context, id uint64, description string, state common.JSONMap, status string) error {
	return r.db.WithContext(ctx).Model(&Goal{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"description": description,
			"goal_state":  state,
			"status":      status,
		}).Error
}
