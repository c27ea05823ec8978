package grouper

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// GroupingError indicates that no events could be loaded or grouped from a
// raw session directory. It is fatal; callers should report and exit.
type GroupingError struct {
	msg string
}

func (e *GroupingError) Error() string { return e.msg }

func groupingErrorf(format string, args ...any) *GroupingError {
	return &GroupingError{msg: fmt.Sprintf(format, args...)}
}

// Event is one normalized record of agent activity.
type Event struct {
	Step      string         `json:"step"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Status    string         `json:"status,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventGroup is one step's worth of events, sorted ascending by timestamp.
type EventGroup struct {
	Step   string
	Events []Event
}

// StartedAt returns the earliest event timestamp in the group.
func (g *EventGroup) StartedAt() time.Time {
	min := g.Events[0].Timestamp
	for _, ev := range g.Events[1:] {
		if ev.Timestamp.Before(min) {
			min = ev.Timestamp
		}
	}
	return min
}

// CompletedAt returns the latest event timestamp in the group.
func (g *EventGroup) CompletedAt() time.Time {
	max := g.Events[0].Timestamp
	for _, ev := range g.Events[1:] {
		if ev.Timestamp.After(max) {
			max = ev.Timestamp
		}
	}
	return max
}

// Status returns the most recent non-empty event status, or "" if no event
// in the group carries one.
func (g *EventGroup) Status() string {
	for i := len(g.Events) - 1; i >= 0; i-- {
		if g.Events[i].Status != "" {
			return g.Events[i].Status
		}
	}
	return ""
}

// Tags returns the sorted union of all tag metadata across the group's
// events. Tag metadata may be a comma-separated string or a list.
func (g *EventGroup) Tags() []string {
	collected := map[string]struct{}{}
	for _, ev := range g.Events {
		switch tags := ev.Metadata["tags"].(type) {
		case string:
			for _, tag := range strings.Split(tags, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					collected[tag] = struct{}{}
				}
			}
		case []any:
			for _, tag := range tags {
				collected[stringify(tag)] = struct{}{}
			}
		case []string:
			for _, tag := range tags {
				collected[tag] = struct{}{}
			}
		}
	}
	if len(collected) == 0 {
		return nil
	}
	out := make([]string, 0, len(collected))
	for tag := range collected {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Cwd returns the most recent non-empty working-directory metadata value.
func (g *EventGroup) Cwd() string {
	for i := len(g.Events) - 1; i >= 0; i-- {
		if cwd := stringify(g.Events[i].Metadata["cwd"]); cwd != "" {
			return cwd
		}
	}
	return ""
}

// Title returns the first non-empty content line in the group, truncated to
// 80 columns, or a default naming the step.
func (g *EventGroup) Title() string {
	for _, ev := range g.Events {
		if ev.Content == "" {
			continue
		}
		snippet, _, _ := strings.Cut(strings.TrimSpace(ev.Content), "\n")
		return runewidth.Truncate(snippet, 80, "")
	}
	return fmt.Sprintf("Step %s", g.Step)
}
