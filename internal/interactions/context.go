package interactions

import (
	"fmt"
	"strings"
	"time"
)

// BuildContext renders the log block fed into instruction assembly. Entries
// are rendered oldest first; an empty log still yields an explicit marker so
// the model is told there is no history rather than being shown nothing.
func BuildContext(entries []Entry) string {
	if len(entries) == 0 {
		return "No prior interactions recorded."
	}

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, "Recent interaction log (most recent last):")
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", e.Role, e.Timestamp.UTC().Format(time.RFC3339), e.Content))
	}
	return strings.Join(lines, "\n")
}
