package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifestJSON = `{
  "session": "sess-1",
  "project": "homedoc",
  "branch": null,
  "generated_at": "2024-05-01T12:00:00Z",
  "version": "0.1.0",
  "artifact_count": 1,
  "artifacts": [
    {
      "filename": "artifact-1-abcd1234-success.md",
      "step": "1",
      "status": "success",
      "hash": "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
    }
  ]
}`

func TestValidateManifestBytes_Valid(t *testing.T) {
	errs := ValidateManifestBytes([]byte(validManifestJSON))
	assert.Empty(t, errs)
}

func TestValidateManifestBytes_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(string) string
	}{
		{"missing artifacts", func(s string) string {
			return strings.Replace(s, `"artifacts": [`, `"not_artifacts": [`, 1)
		}},
		{"empty session", func(s string) string {
			return strings.Replace(s, `"session": "sess-1"`, `"session": ""`, 1)
		}},
		{"short hash", func(s string) string {
			return strings.Replace(s, "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", "abcd", 1)
		}},
		{"negative count", func(s string) string {
			return strings.Replace(s, `"artifact_count": 1`, `"artifact_count": -1`, 1)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateManifestBytes([]byte(tt.mutate(validManifestJSON)))
			assert.NotEmpty(t, errs)
		})
	}
}

func TestValidateManifestBytes_MalformedJSON(t *testing.T) {
	errs := ValidateManifestBytes([]byte("{not json"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "JSON parse error")
}

func TestValidateManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte(validManifestJSON), 0o644))

	errs, err := ValidateManifestFile(path)
	require.NoError(t, err)
	assert.Empty(t, errs)

	_, err = ValidateManifestFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
