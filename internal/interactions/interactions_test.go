package interactions

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestMemoryLog_AppendAndRecent(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := l.Append(ctx, 1, Entry{
			Timestamp: time.Now(),
			Role:      RoleUser,
			Content:   fmt.Sprintf("m%d", i),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recent, err := l.Recent(ctx, 1, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(recent))
	}
	// oldest first within the window
	for i, want := range []string{"m2", "m3", "m4"} {
		if recent[i].Content != want {
			t.Fatalf("recent[%d]: expected %q, got %q", i, want, recent[i].Content)
		}
	}
}

func TestMemoryLog_CapEvictsOldest(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	total := MaxStoredEntries + 5
	for i := 0; i < total; i++ {
		err := l.Append(ctx, 2, Entry{
			Timestamp: time.Now(),
			Role:      RoleUser,
			Content:   fmt.Sprintf("m%d", i),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := l.All(ctx, 2)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != MaxStoredEntries {
		t.Fatalf("expected %d entries, got %d", MaxStoredEntries, len(all))
	}
	if all[0].Content != "m5" {
		t.Fatalf("expected oldest surviving entry m5, got %q", all[0].Content)
	}
	if all[len(all)-1].Content != fmt.Sprintf("m%d", total-1) {
		t.Fatalf("expected newest entry last, got %q", all[len(all)-1].Content)
	}
}

func TestMemoryLog_UsersAreIsolated(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	if err := l.Append(ctx, 3, Entry{Role: RoleUser, Content: "mine"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	other, err := l.All(ctx, 4)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected empty log for other user, got %d entries", len(other))
	}
}

func TestBuildContext_Empty(t *testing.T) {
	if got := BuildContext(nil); got != "No prior interactions recorded." {
		t.Fatalf("unexpected empty-log marker: %q", got)
	}
}

func TestBuildContext_RendersOldestFirst(t *testing.T) {
	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Timestamp: ts, Role: RoleUser, Content: "hello"},
		{Timestamp: ts.Add(time.Minute), Role: RoleAssistant, Content: "hi there"},
	}

	got := BuildContext(entries)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 lines, got %d", len(lines))
	}
	if lines[0] != "Recent interaction log (most recent last):" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[1] != "- [user] 2026-08-30T10:00:00Z: hello" {
		t.Fatalf("unexpected first line: %q", lines[1])
	}
	if lines[2] != "- [assistant] 2026-08-30T10:01:00Z: hi there" {
		t.Fatalf("unexpected second line: %q", lines[2])
	}
}
