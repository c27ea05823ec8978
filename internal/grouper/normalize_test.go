package grouper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"explicit status wins", map[string]any{"status": "skipped", "success": true}, "skipped"},
		{"metadata status", map[string]any{"metadata": map[string]any{"status": "running"}}, "running"},
		{"success true", map[string]any{"success": true}, "success"},
		{"success false", map[string]any{"success": false}, "failed"},
		{"exit code zero", map[string]any{"exit_code": float64(0)}, "success"},
		{"exit code nonzero", map[string]any{"exit_code": float64(3)}, "failed"},
		{"exit code string", map[string]any{"exit_code": "1"}, "failed"},
		{"error present", map[string]any{"error": "boom"}, "error"},
		{"outcome fallback", map[string]any{"outcome": "partial"}, "partial"},
		{"nothing", map[string]any{}, ""},
		{"status bool true", map[string]any{"status": true}, "success"},
		{"metadata exit code", map[string]any{"metadata": map[string]any{"exit_code": float64(2)}}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := normalizeEvent(rawRecord{fields: tt.raw}, "001")
			assert.Equal(t, tt.want, ev.Status)
		})
	}
}

func TestNormalizeEvent_FieldPriority(t *testing.T) {
	t.Run("step chain", func(t *testing.T) {
		tests := []struct {
			name string
			raw  map[string]any
			want string
		}{
			{"step", map[string]any{"step": "a", "step_id": "b"}, "a"},
			{"step_id", map[string]any{"step_id": "b", "run_id": "c"}, "b"},
			{"metadata step", map[string]any{"metadata": map[string]any{"step": "m"}, "run_id": "c"}, "m"},
			{"run_id", map[string]any{"run_id": "c", "id": "d"}, "c"},
			{"id", map[string]any{"id": "d"}, "d"},
			{"numeric step", map[string]any{"step": float64(7)}, "7"},
			{"positional fallback", map[string]any{}, "042"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ev := normalizeEvent(rawRecord{fields: tt.raw}, "042")
				assert.Equal(t, tt.want, ev.Step)
			})
		}
	})

	t.Run("filename stem beats positional", func(t *testing.T) {
		rec := rawRecord{fields: map[string]any{}, source: "step-003.json"}
		ev := normalizeEvent(rec, "042")
		assert.Equal(t, "step-003", ev.Step)
		assert.NotContains(t, ev.Metadata, "fallback_step")
	})

	t.Run("stem applies to aggregate sources too", func(t *testing.T) {
		rec := rawRecord{fields: map[string]any{}, source: "events.jsonl"}
		ev := normalizeEvent(rec, "042")
		assert.Equal(t, "events", ev.Step)
		assert.NotContains(t, ev.Metadata, "fallback_step")
	})

	t.Run("positional only without a source", func(t *testing.T) {
		ev := normalizeEvent(rawRecord{fields: map[string]any{}}, "042")
		assert.Equal(t, "042", ev.Step)
		assert.Equal(t, "042", ev.Metadata["fallback_step"])
	})

	t.Run("role chain", func(t *testing.T) {
		tests := []struct {
			name string
			raw  map[string]any
			want string
		}{
			{"role", map[string]any{"role": "user", "type": "message"}, "user"},
			{"author role", map[string]any{"author": map[string]any{"role": "agent"}}, "agent"},
			{"type", map[string]any{"type": "observation"}, "observation"},
			{"default", map[string]any{}, "unknown"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ev := normalizeEvent(rawRecord{fields: tt.raw}, "001")
				assert.Equal(t, tt.want, ev.Role)
			})
		}
	})

	t.Run("content chain", func(t *testing.T) {
		tests := []struct {
			name string
			raw  map[string]any
			want string
		}{
			{"content", map[string]any{"content": "a", "message": "b"}, "a"},
			{"message", map[string]any{"message": "b", "text": "c"}, "b"},
			{"text", map[string]any{"text": "c"}, "c"},
			{"summary", map[string]any{"summary": "d"}, "d"},
			{"absent", map[string]any{}, ""},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ev := normalizeEvent(rawRecord{fields: tt.raw}, "001")
				assert.Equal(t, tt.want, ev.Content)
			})
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Run("zulu equals explicit offset", func(t *testing.T) {
		zulu := parseTimestamp("2024-05-01T12:00:00Z")
		offset := parseTimestamp("2024-05-01T12:00:00+00:00")
		require.True(t, zulu.Equal(offset))
		assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), zulu)
	})

	t.Run("epoch seconds", func(t *testing.T) {
		got := parseTimestamp(float64(1714561200))
		assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), got)
	})

	t.Run("fractional epoch", func(t *testing.T) {
		got := parseTimestamp(float64(1714561200.5))
		assert.Equal(t, int64(1714561200), got.Unix())
		assert.NotZero(t, got.Nanosecond())
	})

	t.Run("naive datetime", func(t *testing.T) {
		got := parseTimestamp("2024-05-01T12:00:00")
		assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), got)
	})

	t.Run("unparsable falls back to epoch", func(t *testing.T) {
		got := parseTimestamp("not a time")
		assert.True(t, got.Equal(epochZero))
	})

	t.Run("absent falls back to epoch", func(t *testing.T) {
		got := parseTimestamp(nil)
		assert.True(t, got.Equal(epochZero))
	})

	t.Run("fallback sorts before valid timestamps", func(t *testing.T) {
		assert.True(t, epochZero.Before(parseTimestamp("2024-05-01T00:00:00Z")))
	})
}

func TestExtractMetadata(t *testing.T) {
	t.Run("extras merged under top level", func(t *testing.T) {
		raw := map[string]any{
			"extras":   map[string]any{"metadata": map[string]any{"a": "extras", "b": "extras"}},
			"metadata": map[string]any{"a": "top"},
		}
		metadata := extractMetadata(raw)
		assert.Equal(t, "top", metadata["a"])
		assert.Equal(t, "extras", metadata["b"])
	})

	t.Run("extras command injected", func(t *testing.T) {
		raw := map[string]any{"extras": map[string]any{"command": "ls -la"}}
		assert.Equal(t, "ls -la", extractMetadata(raw)["command"])
	})

	t.Run("existing command preserved", func(t *testing.T) {
		raw := map[string]any{
			"extras":   map[string]any{"command": "ls"},
			"metadata": map[string]any{"command": "pwd"},
		}
		assert.Equal(t, "pwd", extractMetadata(raw)["command"])
	})
}

func TestNormalizeEvent_Provenance(t *testing.T) {
	rec := rawRecord{
		fields: map[string]any{"step": "s1", "tags": []any{"infra", "ci"}},
		source: "events.jsonl",
		index:  3,
	}
	ev := normalizeEvent(rec, "001")
	assert.Equal(t, "events.jsonl", ev.Metadata["source"])
	assert.Equal(t, 3, ev.Metadata["source_index"])
	assert.Equal(t, []any{"infra", "ci"}, ev.Metadata["tags"])
	assert.NotContains(t, ev.Metadata, "fallback_step")
}
