package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load consults so tests control the whole
// environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"OPENWEBUI_BASE_URL", "OH2WEBUI_BASE_URL",
		"OPENWEBUI_API_TOKEN", "OH2WEBUI_API_TOKEN",
		"SESSIONS_DIR", "OH2WEBUI_SESSIONS_DIR",
		"PROJECT_NAME", "OH2WEBUI_PROJECT",
		"BRANCH", "OH2WEBUI_BRANCH",
		"OH2WEBUI_MODEL", "OH2WEBUI_DRY_RUN", "OH2WEBUI_DEBUG",
		"OH2WEBUI_CAPTURE_CHAT_EXPORT", "OH2WEBUI_CONFIG",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "homedoc", s.Project)
	assert.Equal(t, "openai/gpt-4o-mini", s.Model)
	assert.NotEmpty(t, s.SessionsDir)
	assert.True(t, s.DryRun, "missing credentials should force dry-run")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENWEBUI_BASE_URL", "https://webui.internal/")
	t.Setenv("OPENWEBUI_API_TOKEN", "tok-123")
	t.Setenv("PROJECT_NAME", "acme")
	t.Setenv("BRANCH", "main")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://webui.internal", s.BaseURL, "trailing slash trimmed")
	assert.Equal(t, "tok-123", s.APIToken)
	assert.Equal(t, "acme", s.Project)
	assert.Equal(t, "main", s.Branch)
	assert.False(t, s.DryRun)
	assert.Equal(t, map[string]string{"Authorization": "Bearer tok-123"}, s.AuthHeader())
}

func TestLoad_PlaceholderCredentials(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		token string
	}{
		{"placeholder token", "https://webui.internal", "your-token-here"},
		{"changeme token", "https://webui.internal", "changeme"},
		{"example base url", "https://example.com", "tok-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("OPENWEBUI_BASE_URL", tt.base)
			t.Setenv("OPENWEBUI_API_TOKEN", tt.token)

			s, err := Load()
			require.NoError(t, err)
			assert.True(t, s.DryRun)
		})
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project: fromfile\nbranch: dev\n"), 0o644))
	t.Setenv("OH2WEBUI_CONFIG", path)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fromfile", s.Project)
	assert.Equal(t, "dev", s.Branch)
}

func TestLoad_EnvBeatsYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project: fromfile\n"), 0o644))
	t.Setenv("OH2WEBUI_CONFIG", path)
	t.Setenv("PROJECT_NAME", "fromenv")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fromenv", s.Project)
}

func TestLoad_CaptureChatExport(t *testing.T) {
	tests := []struct {
		name    string
		capture string
		debug   string
		want    bool
	}{
		{"off by default", "", "", false},
		{"auto follows debug", "auto", "true", true},
		{"unset follows debug", "", "true", true},
		{"explicit on", "true", "", true},
		{"explicit off beats debug", "false", "true", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("OPENWEBUI_BASE_URL", "https://webui.internal")
			t.Setenv("OPENWEBUI_API_TOKEN", "tok-123")
			t.Setenv("OH2WEBUI_CAPTURE_CHAT_EXPORT", tt.capture)
			t.Setenv("OH2WEBUI_DEBUG", tt.debug)

			s, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.CaptureChatExport)
		})
	}
}

func TestLoad_CaptureChatExport_DryRun(t *testing.T) {
	clearEnv(t)
	t.Setenv("OH2WEBUI_CAPTURE_CHAT_EXPORT", "true")

	// No credentials forces dry-run, and dry-run never writes exports.
	s, err := Load()
	require.NoError(t, err)
	require.True(t, s.DryRun)
	assert.False(t, s.CaptureChatExport)
}

func TestAuthHeader_Empty(t *testing.T) {
	s := &Settings{}
	assert.Empty(t, s.AuthHeader())
}
