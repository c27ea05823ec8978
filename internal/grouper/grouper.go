// Package grouper loads raw agent-session event logs and normalizes them
// into chronologically ordered event groups keyed by step.
package grouper

import (
	"fmt"
	"log/slog"
	"sort"
)

// LoadEventGroups loads every event under rawRoot, normalizes each record,
// buckets events by step identifier, and returns the groups ordered by each
// group's earliest timestamp. Events within a group are sorted ascending by
// timestamp. Returns a GroupingError when no recognized source exists or no
// records were parsed.
func LoadEventGroups(rawRoot string) ([]EventGroup, error) {
	records, err := loadRawRecords(rawRoot)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, groupingErrorf("no events parsed from %s", rawRoot)
	}

	buckets := map[string][]Event{}
	var order []string
	for i, rec := range records {
		fallback := fmt.Sprintf("%03d", i+1)
		ev := normalizeEvent(rec, fallback)
		if _, ok := buckets[ev.Step]; !ok {
			order = append(order, ev.Step)
		}
		buckets[ev.Step] = append(buckets[ev.Step], ev)
	}

	groups := make([]EventGroup, 0, len(order))
	for _, step := range order {
		events := buckets[step]
		sort.SliceStable(events, func(a, b int) bool {
			return events[a].Timestamp.Before(events[b].Timestamp)
		})
		groups = append(groups, EventGroup{Step: step, Events: events})
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].StartedAt().Before(groups[b].StartedAt())
	})

	slog.Debug("grouped session events", "records", len(records), "groups", len(groups))
	return groups, nil
}
