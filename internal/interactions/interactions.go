// Package interactions keeps the append-only, cross-conversation exchange
// record used for recency context and usage metrics. It is deliberately
// separate from the relational conversation history: the same log feeds both
// the typed-chat and voice channels.
package interactions

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxStoredEntries caps the per-user log; the oldest entries are evicted on
// overflow.
const MaxStoredEntries = 200

type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
}

// Log is the per-user interaction record. Implementations must keep entries
// in append order and enforce the MaxStoredEntries cap.
type Log interface {
	// Append adds an entry; the cap is enforced atomically with the write.
	Append(ctx context.Context, userID uint64, entry Entry) error
	// Recent returns up to limit entries, oldest first.
	Recent(ctx context.Context, userID uint64, limit int) ([]Entry, error)
	// All returns every stored entry, oldest first.
	All(ctx context.Context, userID uint64) ([]Entry, error)
}
