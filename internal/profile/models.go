package profile

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voicethink/coach/internal/common"
)

const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
	GoalStatusArchived  = "archived"
	GoalStatusPaused    = "paused"
)

// Session binds one end user to a durable identity, independent of the login
// mechanism. Rows are created on first profile resolution and never deleted.
type Session struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionUUID string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"session_uuid"`
	Metadata    common.JSONMap `gorm:"type:json" json:"metadata"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }

// UserProfile caches the resolved identity plus the derived profile/metrics
// snapshots, keyed by user.
type UserProfile struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID         uint64          `gorm:"uniqueIndex;not null" json:"-"`
	SessionUUID    string          `gorm:"type:varchar(36);not null" json:"session_uuid"`
	InteractionKey string          `gorm:"type:varchar(64);not null" json:"interaction_key"`
	ProfileData    *ProfileData    `gorm:"type:json" json:"profile_data"`
	Metrics        *ProfileMetrics `gorm:"type:json" json:"metrics"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profiles" }

// Goal is a user objective reconciled from transcripts. Title is the upsert
// key, matched case-insensitively.
type Goal struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionUUID string         `gorm:"type:varchar(36);index;not null" json:"session_uuid"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	GoalState   common.JSONMap `gorm:"type:json" json:"goal_state"`
	Status      string         `gorm:"type:varchar(16);index;not null" json:"status"`
	TargetDate  *time.Time     `json:"target_date"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Goal) TableName() string { return "user_goals" }

// GoalCategory reads the category label out of a goal's free-form state.
// Anything missing or blank lands in the General section.
func GoalCategory(state common.JSONMap) string {
	if category, ok := state.StringField("category"); ok {
		return category
	}
	return "General"
}

type WindowStats struct {
	Count         int `json:"count"`
	PreviousCount int `json:"previousCount"`
	Delta         int `json:"delta"`
}

type InteractionMetrics struct {
	Last3Days  WindowStats `json:"last3Days"`
	Last7Days  WindowStats `json:"last7Days"`
	Last30Days WindowStats `json:"last30Days"`
}

type GoalCounts struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Paused    int `json:"paused"`
}

type GoalChangeMetrics struct {
	Last3Days  int `json:"last3Days"`
	Last7Days  int `json:"last7Days"`
	Last30Days int `json:"last30Days"`
}

type ProfileMetrics struct {
	Interactions InteractionMetrics `json:"interactions"`
	GoalCounts   GoalCounts         `json:"goalCounts"`
	GoalChanges  GoalChangeMetrics  `json:"goalChanges"`
}

type GoalSnapshot struct {
	ID          uint64         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	GoalState   common.JSONMap `json:"goalState"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type ProfileData struct {
	Goals []GoalSnapshot `json:"goals"`
}

func jsonValue(v any) (driver.Value, error) {
	return json.Marshal(v)
}

func jsonScan(dst any, value any) error {
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("profile: unsupported column type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func (d ProfileData) Value() (driver.Value, error)  { return jsonValue(d) }
func (d *ProfileData) Scan(value any) error         { return jsonScan(d, value) }
func (m ProfileMetrics) Value() (driver.Value, error) { return jsonValue(m) }
func (m *ProfileMetrics) Scan(value any) error        { return jsonScan(m, value) }
