package interactions

import (
	"context"
	"sync"
)

// MemoryLog is an in-process Log for tests and single-node development.
type MemoryLog struct {
	mu      sync.Mutex
	entries map[uint64][]Entry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{entries: make(map[uint64][]Entry)}
}

func (l *MemoryLog) Append(ctx context.Context, userID uint64, entry Entry) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	next := append(l.entries[userID], entry)
	if len(next) > MaxStoredEntries {
		next = next[len(next)-MaxStoredEntries:]
	}
	l.entries[userID] = next
	return nil
}

func (l *MemoryLog) Recent(ctx context.Context, userID uint64, limit int) ([]Entry, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := l.entries[userID]
	if limit <= 0 || limit > len(stored) {
		limit = len(stored)
	}
	out := make([]Entry, limit)
	copy(out, stored[len(stored)-limit:])
	return out, nil
}

func (l *MemoryLog) All(ctx context.Context, userID uint64) ([]Entry, error) {
	return l.Recent(ctx, userID, 0)
}
