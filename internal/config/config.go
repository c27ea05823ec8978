// Package config loads tool settings from the environment, an optional
// .env file, and an optional YAML settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Version is the tool version embedded in manifests. Overridable at build
// time via -ldflags "-X oh2webui/internal/config.Version=...".
var Version = "0.1.0"

// placeholderTokens are sample values that must not be treated as credentials.
var placeholderTokens = map[string]struct{}{
	"":                {},
	"your-token-here": {},
	"changeme":        {},
}

// Settings holds everything the pipeline and the Open WebUI client need.
type Settings struct {
	BaseURL     string `yaml:"base_url"`
	APIToken    string `yaml:"api_token"`
	SessionsDir string `yaml:"sessions_dir"`
	Project     string `yaml:"project"`
	Branch      string `yaml:"branch"`
	Model       string `yaml:"model"`
	DryRun      bool   `yaml:"dry_run"`
	DebugMode   bool   `yaml:"debug"`

	// CaptureChatExport saves a JSON export of each created chat next to
	// the artifacts. Defaults to the debug setting; never active in dry-run.
	CaptureChatExport bool `yaml:"capture_chat_export"`

	Version string `yaml:"-"`
}

// AuthHeader returns the Authorization header for the configured token, or
// an empty map when no token is set.
func (s *Settings) AuthHeader() map[string]string {
	if s.APIToken == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "Bearer " + s.APIToken}
}

// Load builds Settings. Precedence, lowest to highest: built-in defaults,
// the YAML file named by OH2WEBUI_CONFIG (if any), then environment
// variables (a .env file in the working directory is read first).
// A missing base URL or API token forces dry-run mode.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{
		Project: "homedoc",
		Model:   "openai/gpt-4o-mini",
		Version: Version,
	}

	if path := os.Getenv("OH2WEBUI_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
		}
	}

	applyEnv(s)

	if s.SessionsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		s.SessionsDir = filepath.Join(home, ".openhands", "sessions")
	}

	if _, placeholder := placeholderTokens[s.APIToken]; placeholder {
		s.APIToken = ""
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if strings.Contains(s.BaseURL, "example") {
		s.BaseURL = ""
	}

	if !s.DryRun {
		s.DryRun = s.BaseURL == "" || s.APIToken == ""
	}
	if s.DryRun {
		s.CaptureChatExport = false
	}

	return s, nil
}

func applyEnv(s *Settings) {
	setIfEnv(&s.BaseURL, "OPENWEBUI_BASE_URL", "OH2WEBUI_BASE_URL")
	setIfEnv(&s.APIToken, "OPENWEBUI_API_TOKEN", "OH2WEBUI_API_TOKEN")
	setIfEnv(&s.SessionsDir, "SESSIONS_DIR", "OH2WEBUI_SESSIONS_DIR")
	setIfEnv(&s.Project, "PROJECT_NAME", "OH2WEBUI_PROJECT")
	setIfEnv(&s.Branch, "BRANCH", "OH2WEBUI_BRANCH")
	setIfEnv(&s.Model, "OH2WEBUI_MODEL")

	if v := os.Getenv("OH2WEBUI_DRY_RUN"); v != "" {
		s.DryRun = boolEnv(v)
	}
	if v := os.Getenv("OH2WEBUI_DEBUG"); v != "" {
		s.DebugMode = boolEnv(v)
	}
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("OH2WEBUI_CAPTURE_CHAT_EXPORT"))); v {
	case "", "auto":
		s.CaptureChatExport = s.CaptureChatExport || s.DebugMode
	default:
		s.CaptureChatExport = boolEnv(v)
	}
}

func setIfEnv(dst *string, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
			return
		}
	}
}

func boolEnv(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
