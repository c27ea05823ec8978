// Package distill renders normalized event groups into Markdown artifacts
// with a JSON manifest and an append-only ingest log.
package distill

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"oh2webui/internal/config"
	"oh2webui/internal/grouper"
)

// DistillationError indicates the distillation process cannot produce
// artifacts. It is fatal; callers should report and exit.
type DistillationError struct {
	msg string
}

func (e *DistillationError) Error() string { return e.msg }

func distillationErrorf(format string, args ...any) *DistillationError {
	return &DistillationError{msg: fmt.Sprintf(format, args...)}
}

// Strategy selects how a session is rendered. The two strategies are
// mutually exclusive per run.
type Strategy string

const (
	// StrategyPerGroup writes one artifact per event group.
	StrategyPerGroup Strategy = "per-group"
	// StrategyTranscript writes one consolidated transcript document.
	StrategyTranscript Strategy = "transcript"
)

// ArtifactRecord is one manifest row describing an emitted artifact.
type ArtifactRecord struct {
	Filename string  `json:"filename"`
	Step     string  `json:"step"`
	Status   *string `json:"status"`
	Hash     string  `json:"hash"`
}

// Manifest is the JSON index of all artifacts produced by one run. It is
// written wholesale; later runs overwrite it rather than merging.
type Manifest struct {
	Session       string           `json:"session"`
	Project       string           `json:"project"`
	Branch        *string          `json:"branch"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Version       string           `json:"version"`
	ArtifactCount int              `json:"artifact_count"`
	Artifacts     []ArtifactRecord `json:"artifacts"`
}

// Result reports what one distillation run produced.
type Result struct {
	SessionID    string           `json:"session"`
	Artifacts    []ArtifactRecord `json:"artifacts"`
	ArtifactsDir string           `json:"artifacts_dir"`
	ManifestPath string           `json:"manifest"`
	IngestLog    string           `json:"ingest_log"`
	Deduplicated int              `json:"deduplicated"`
}

// ManifestName is the manifest filename within an artifacts directory.
const ManifestName = "run.json"

// IngestLogName is the ingest log filename within an artifacts directory.
const IngestLogName = "ingest.log"

// Session distills the raw events under rawRoot into artifactsRoot using
// the given strategy. The artifacts directory is created if absent; the
// manifest is overwritten; the ingest log is only appended to.
func Session(sessionID, rawRoot, artifactsRoot string, settings *config.Settings, strategy Strategy) (*Result, error) {
	if err := os.MkdirAll(artifactsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifacts directory: %w", err)
	}

	groups, err := grouper.LoadEventGroups(rawRoot)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, distillationErrorf("no groups available for distillation")
	}

	ingestLog := filepath.Join(artifactsRoot, IngestLogName)
	manifestPath := filepath.Join(artifactsRoot, ManifestName)

	var records []ArtifactRecord
	deduplicated := 0
	switch strategy {
	case StrategyTranscript:
		records, err = renderTranscript(sessionID, artifactsRoot, ingestLog, groups, settings)
	default:
		records, deduplicated, err = renderPerGroup(sessionID, artifactsRoot, ingestLog, groups, settings)
	}
	if err != nil {
		return nil, err
	}

	manifest := Manifest{
		Session:       sessionID,
		Project:       settings.Project,
		Branch:        nullable(settings.Branch),
		GeneratedAt:   time.Now().UTC(),
		Version:       settings.Version,
		ArtifactCount: len(records),
		Artifacts:     records,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	if err := AppendLog(ingestLog, fmt.Sprintf("manifest updated count=%d", len(records))); err != nil {
		return nil, err
	}

	slog.Debug("distillation complete",
		"session", sessionID, "strategy", string(strategy),
		"artifacts", len(records), "deduplicated", deduplicated)

	return &Result{
		SessionID:    sessionID,
		Artifacts:    records,
		ArtifactsDir: artifactsRoot,
		ManifestPath: manifestPath,
		IngestLog:    ingestLog,
		Deduplicated: deduplicated,
	}, nil
}

// renderPerGroup writes one artifact per group, skipping groups whose
// normalized text hashes identically to an earlier group in this run.
func renderPerGroup(sessionID, artifactsRoot, ingestLog string, groups []grouper.EventGroup, settings *config.Settings) ([]ArtifactRecord, int, error) {
	var records []ArtifactRecord
	seen := map[string]struct{}{}
	deduplicated := 0

	for i := range groups {
		group := &groups[i]
		summary := normalizeContent(group.Events)
		digest := hashText(summary)
		short := digest[:8]

		if _, dup := seen[digest]; dup {
			deduplicated++
			msg := fmt.Sprintf("skip step=%s reason=duplicate hash=%s", group.Step, short)
			if err := AppendLog(ingestLog, msg); err != nil {
				return nil, 0, err
			}
			continue
		}
		seen[digest] = struct{}{}

		filename := artifactFilename(group, short)
		body := renderFrontMatter(groupFrontMatter(sessionID, group, digest, settings))
		if summary == "" {
			body += "(no textual content captured)"
		} else {
			body += summary
		}
		path := filepath.Join(artifactsRoot, filename)
		if err := os.WriteFile(path, []byte(body+"\n"), 0o644); err != nil {
			return nil, 0, fmt.Errorf("write artifact: %w", err)
		}

		records = append(records, ArtifactRecord{
			Filename: filename,
			Step:     group.Step,
			Status:   nullable(group.Status()),
			Hash:     digest,
		})
		if err := AppendLog(ingestLog, fmt.Sprintf("write artifact=%s hash=%s", filename, short)); err != nil {
			return nil, 0, err
		}
	}

	if len(records) == 0 {
		return nil, 0, distillationErrorf("all groups were deduplicated; no artifacts emitted")
	}
	return records, deduplicated, nil
}

// normalizeContent concatenates "role: content" lines for every event with
// non-blank content.
func normalizeContent(events []grouper.Event) string {
	var chunks []string
	for _, ev := range events {
		content := strings.TrimSpace(ev.Content)
		if content == "" {
			continue
		}
		chunks = append(chunks, fmt.Sprintf("%s: %s", strings.ToLower(ev.Role), content))
	}
	return strings.Join(chunks, "\n")
}

// hashText hashes text with each line whitespace-trimmed, so byte-level
// indentation and line-ending differences do not defeat deduplication.
func hashText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// groupFrontMatter assembles the front-matter block for a per-group artifact.
func groupFrontMatter(sessionID string, group *grouper.EventGroup, digest string, settings *config.Settings) frontMatter {
	return frontMatter{
		Project:   settings.Project,
		Session:   sessionID,
		Step:      group.Step,
		Generated: time.Now().UTC().Format(time.RFC3339),
		Opened:    group.StartedAt().Format(time.RFC3339),
		Closed:    group.CompletedAt().Format(time.RFC3339),
		Status:    nullable(group.Status()),
		Hash:      digest,
		Branch:    settings.Branch,
		Cwd:       group.Cwd(),
		Tags:      group.Tags(),
	}
}

// frontMatter is the JSON object embedded between --- delimiters at the top
// of every artifact.
type frontMatter struct {
	Project   string   `json:"project"`
	Session   string   `json:"session"`
	Step      string   `json:"step,omitempty"`
	Generated string   `json:"generated"`
	Opened    string   `json:"opened,omitempty"`
	Closed    string   `json:"closed,omitempty"`
	Events    int      `json:"events,omitempty"`
	FirstAt   string   `json:"first_event,omitempty"`
	LastAt    string   `json:"last_event,omitempty"`
	Status    *string  `json:"status"`
	Hash      string   `json:"hash"`
	Branch    string   `json:"branch,omitempty"`
	Cwd       string   `json:"cwd,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

func renderFrontMatter(fm frontMatter) string {
	data, err := json.MarshalIndent(fm, "", "  ")
	if err != nil {
		// front matter is built from plain strings; MarshalIndent cannot fail
		data = []byte("{}")
	}
	return "---\n" + string(data) + "\n---\n\n"
}

// artifactFilename names a per-group artifact by step, hash prefix, and
// status slug.
func artifactFilename(group *grouper.EventGroup, shortHash string) string {
	status := group.Status()
	if status == "" {
		status = "pending"
	}
	statusSlug := strings.ReplaceAll(strings.ToLower(status), " ", "-")
	stepSlug := strings.ReplaceAll(group.Step, "/", "-")
	return fmt.Sprintf("artifact-%s-%s-%s.md", stepSlug, shortHash, statusSlug)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// LoadManifest reads and decodes a run.json manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
