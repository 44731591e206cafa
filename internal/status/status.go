// Package status normalizes the deployment status strings reported by the
// EasyDeploy API (and by the legacy CLI text output) into a closed set of
// lifecycle states.
package status

import (
	"strings"
	"time"
)

// State is a deployment lifecycle state.
type State string

const (
	Pending    State = "pending"
	InProgress State = "in_progress"
	Completed  State = "completed"
	Failed     State = "failed"
)

// Classify maps a raw status string to a lifecycle state. Unknown values are
// treated as still running.
func Classify(raw string) State {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "completed", "done":
		return Completed
	case "failed", "error":
		return Failed
	case "running", "in_progress", "pending":
		return InProgress
	default:
		return InProgress
	}
}

// Valid reports whether s is one of the four lifecycle states.
func (s State) Valid() bool {
	switch s {
	case Pending, InProgress, Completed, Failed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are expected.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

func (s State) String() string {
	return string(s)
}

func (s State) rank() int {
	switch s {
	case Pending:
		return 1
	case InProgress:
		return 2
	case Completed, Failed:
		return 3
	}
	return 0
}

// Advance returns the state a deployment should hold after observing next
// while in current. Terminal states are final and a lower-ranked state never
// replaces a higher one.
func Advance(current, next State) State {
	if !next.Valid() {
		return current
	}
	if current.Terminal() {
		return current
	}
	if next.rank() < current.rank() {
		return current
	}
	return next
}

// Summary is the normalized view of one deployment as reported by the server,
// whether it came from the JSON API or from legacy CLI text.
type Summary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	RawStatus string     `json:"raw_status,omitempty"`
	State     State      `json:"status"`
	URL       string     `json:"url,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseTime parses the timestamp formats the API has been seen to emit.
// Empty and placeholder values yield nil.
func ParseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || isPlaceholder(raw) {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func isPlaceholder(v string) bool {
	switch strings.ToLower(v) {
	case "n/a", "none", "null", "-":
		return true
	}
	return false
}
