package interactions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLog stores each user's log as a capped Redis list. Append pipelines
// RPUSH with LTRIM, so concurrent writers for the same user never lose an
// entry and the list never exceeds the cap.
type RedisLog struct {
	rdb *redis.Client
}

func NewRedisLog(rdb *redis.Client) *RedisLog {
	return &RedisLog{rdb: rdb}
}

// Key returns the canonical list key for a user; the same value is persisted
// on the profile row as the interaction-log reference.
func Key(userID uint64) string {
	return fmt.Sprintf("interactions:%d", userID)
}

func (l *RedisLog) Append(ctx context.Context, userID uint64, entry Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := l.rdb.TxPipeline()
	pipe.RPush(ctx, Key(userID), b)
	pipe.LTrim(ctx, Key(userID), -int64(MaxStoredEntries), -1)
	_, err = pipe.Exec(ctx)
	return err
}

func (l *RedisLog) Recent(ctx context.Context, userID uint64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxStoredEntries {
		limit = MaxStoredEntries
	}
	return l.rangeEntries(ctx, userID, -int64(limit))
}

func (l *RedisLog) All(ctx context.Context, userID uint64) ([]Entry, error) {
	return l.rangeEntries(ctx, userID, 0)
}

func (l *RedisLog) rangeEntries(ctx context.Context, userID uint64, start int64) ([]Entry, error) {
	raw, err := l.rdb.LRange(ctx, Key(userID), start, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			// A corrupt element should not hide the rest of the log.
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
