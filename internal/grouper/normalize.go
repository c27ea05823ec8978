package grouper

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// epochZero is the fallback for missing or unparsable timestamps. It sorts
// before every valid timestamp.
var epochZero = time.Unix(0, 0).UTC()

// rawExtras mirrors the nested "extras" object some event shapes carry.
type rawExtras struct {
	Metadata map[string]any `mapstructure:"metadata"`
	Command  any            `mapstructure:"command"`
}

// rawAuthor mirrors the nested "author" object.
type rawAuthor struct {
	Role string `mapstructure:"role"`
}

// decodeLoose decodes v into out, tolerating type mismatches. Records are
// schemaless; a field with an unexpected shape is treated as absent.
func decodeLoose(v any, out any) {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return
	}
	_ = dec.Decode(v)
}

// normalizeEvent maps one raw record plus a fallback step string to an
// Event. It is total: absent or malformed fields degrade to defaults.
func normalizeEvent(rec rawRecord, fallbackStep string) Event {
	raw := rec.fields
	metadata := extractMetadata(raw)

	step := firstNonEmpty(raw["step"], raw["step_id"], metadata["step"], raw["run_id"], raw["id"])
	if step == "" && rec.source != "" {
		step = strings.TrimSuffix(rec.source, filepath.Ext(rec.source))
	}
	usedPositional := step == ""
	if usedPositional {
		step = fallbackStep
	}

	var author rawAuthor
	if v, ok := raw["author"]; ok {
		decodeLoose(v, &author)
	}
	role := firstNonEmpty(raw["role"], author.Role, raw["type"])
	if role == "" {
		role = "unknown"
	}

	content := firstNonEmpty(raw["content"], raw["message"], raw["text"], raw["summary"])

	timestamp := parseTimestamp(firstTruthy(raw["ts"], raw["timestamp"], metadata["ts"], metadata["timestamp"]))

	status := normalizeStatus(firstTruthy(raw["status"], metadata["status"]))
	if status == "" {
		status = deriveStatus(raw, metadata)
	}

	if tags, ok := raw["tags"].([]any); ok {
		setDefault(metadata, "tags", tags)
	}
	if rec.source != "" {
		setDefault(metadata, "source", rec.source)
	}
	if rec.index != 0 {
		setDefault(metadata, "source_index", rec.index)
	}
	if usedPositional {
		setDefault(metadata, "fallback_step", fallbackStep)
	}

	return Event{
		Step:      step,
		Role:      role,
		Content:   content,
		Timestamp: timestamp,
		Status:    status,
		Metadata:  metadata,
	}
}

// extractMetadata merges extras.metadata with the top-level metadata object,
// top-level winning on key collisions. An extras.command value is injected
// when the merged map has no command of its own.
func extractMetadata(raw map[string]any) map[string]any {
	metadata := map[string]any{}

	var extras rawExtras
	if v, ok := raw["extras"]; ok {
		decodeLoose(v, &extras)
	}
	for k, v := range extras.Metadata {
		metadata[k] = v
	}
	if top, ok := raw["metadata"].(map[string]any); ok {
		for k, v := range top {
			metadata[k] = v
		}
	}
	if truthy(extras.Command) {
		setDefault(metadata, "command", extras.Command)
	}
	return metadata
}

// parseTimestamp resolves epoch numbers and ISO-8601 strings. A trailing
// "Z" is normalized to an explicit UTC offset before parsing. Anything else
// falls back to the epoch origin.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case float64:
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC()
	case int:
		return time.Unix(int64(t), 0).UTC()
	case int64:
		return time.Unix(t, 0).UTC()
	case string:
		candidate := strings.TrimSpace(t)
		if strings.HasSuffix(candidate, "Z") {
			candidate = strings.TrimSuffix(candidate, "Z") + "+00:00"
		}
		layouts := []string{
			"2006-01-02T15:04:05.999999999-07:00",
			"2006-01-02T15:04:05.999999999",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02",
		}
		for _, layout := range layouts {
			if parsed, err := time.Parse(layout, candidate); err == nil {
				return parsed.UTC()
			}
		}
	}
	return epochZero
}

// normalizeStatus maps a raw status-ish value to its string form. Boolean
// success flags become "success"/"failed"; anything else is stringified and
// trimmed. Empty means absent.
func normalizeStatus(v any) string {
	if v == nil {
		return ""
	}
	if b, ok := v.(bool); ok {
		if b {
			return "success"
		}
		return "failed"
	}
	return strings.TrimSpace(stringify(v))
}

// deriveStatus infers a status when no explicit one is present: success
// flags, then exit codes, then error presence, then outcome fields.
func deriveStatus(raw, metadata map[string]any) string {
	if s := normalizeStatus(raw["success"]); s != "" {
		return s
	}
	if s := normalizeStatus(metadata["success"]); s != "" {
		return s
	}

	exitCode, present := metadata["exit_code"]
	if !present || exitCode == nil {
		exitCode, present = raw["exit_code"]
	}
	if present && exitCode != nil {
		if code, ok := toInt(exitCode); ok {
			if code == 0 {
				return "success"
			}
			return "failed"
		}
	}

	if truthy(raw["error"]) || truthy(metadata["error"]) {
		return "error"
	}

	return normalizeStatus(firstTruthy(raw["outcome"], metadata["outcome"]))
}

// stringify renders a scalar JSON value as a string; nil becomes "".
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// firstNonEmpty stringifies candidates in order and returns the first
// non-empty result.
func firstNonEmpty(values ...any) string {
	for _, v := range values {
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

// firstTruthy returns the first value that is present and non-zero.
func firstTruthy(values ...any) any {
	for _, v := range values {
		if truthy(v) {
			return v
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case string:
		code, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return code, true
	}
	return 0, false
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}
