package grouper

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// rawRecord is an untyped event record decoded from JSON, tagged with its
// originating file and positional index. The tags are used later only as a
// fallback step identifier and provenance metadata.
type rawRecord struct {
	fields map[string]any
	source string
	index  int
}

// loadRawRecords discovers and parses event sources under rawRoot into a
// flat ordered record sequence. Discovery is priority-ordered: events.jsonl,
// then events/*.json in lexicographic filename order, then session.json.
func loadRawRecords(rawRoot string) ([]rawRecord, error) {
	jsonl := filepath.Join(rawRoot, "events.jsonl")
	if fileExists(jsonl) {
		return loadJSONLines(jsonl)
	}

	eventsDir := filepath.Join(rawRoot, "events")
	if entries, err := os.ReadDir(eventsDir); err == nil {
		var paths []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			paths = append(paths, filepath.Join(eventsDir, e.Name()))
		}
		if len(paths) > 0 {
			sort.Strings(paths)
			var records []rawRecord
			for _, path := range paths {
				recs, err := loadJSONFile(path)
				if err != nil {
					return nil, err
				}
				records = append(records, recs...)
			}
			return records, nil
		}
	}

	bundled := filepath.Join(rawRoot, "session.json")
	if fileExists(bundled) {
		return loadJSONFile(bundled)
	}

	return nil, groupingErrorf("no event files found under %s", rawRoot)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// loadJSONLines parses one JSON object per non-blank line.
func loadJSONLines(path string) ([]rawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []rawRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			return nil, groupingErrorf("%s line %d: %v", path, lineNum, err)
		}
		records = append(records, rawRecord{
			fields: fields,
			source: filepath.Base(path),
			index:  lineNum,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	slog.Debug("loaded event source", "path", path, "records", len(records))
	return records, nil
}

// loadJSONFile parses a document containing either a list of objects, an
// object with an "events" list, or a bare object.
func loadJSONFile(path string) ([]rawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, groupingErrorf("%s: %v", path, err)
	}

	name := filepath.Base(path)
	switch v := doc.(type) {
	case []any:
		return recordsFromList(v, name), nil
	case map[string]any:
		if events, ok := v["events"].([]any); ok {
			return recordsFromList(events, name), nil
		}
		return []rawRecord{{fields: v, source: name, index: 1}}, nil
	}
	return nil, groupingErrorf("%s is not a recognised events container", path)
}

func recordsFromList(items []any, source string) []rawRecord {
	var records []rawRecord
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, rawRecord{fields: fields, source: source, index: i + 1})
	}
	slog.Debug("loaded event source", "path", source, "records", len(records))
	return records
}
