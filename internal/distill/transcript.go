package distill

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"oh2webui/internal/config"
	"oh2webui/internal/grouper"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = unsafeChars.ReplaceAllString(s, "")
	if s == "" {
		s = "unnamed"
	}
	return s
}

// isBootstrapStep reports whether a step identifier has the numeric value 0
// or 1. Those steps carry session bootstrap and instruction noise.
func isBootstrapStep(step string) bool {
	n, err := strconv.ParseFloat(strings.TrimSpace(step), 64)
	return err == nil && (n == 0 || n == 1)
}

// renderTranscript writes a single consolidated document covering all
// non-bootstrap groups, one heading and one summary line per group.
func renderTranscript(sessionID, artifactsRoot, ingestLog string, groups []grouper.EventGroup, settings *config.Settings) ([]ArtifactRecord, error) {
	var retained []*grouper.EventGroup
	for i := range groups {
		if isBootstrapStep(groups[i].Step) {
			continue
		}
		retained = append(retained, &groups[i])
	}
	if len(retained) == 0 {
		return nil, distillationErrorf("no groups available for transcript; only bootstrap steps present")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n", sessionID)
	eventCount := 0
	firstAt := retained[0].StartedAt()
	lastAt := retained[0].CompletedAt()
	for _, group := range retained {
		eventCount += len(group.Events)
		if started := group.StartedAt(); started.Before(firstAt) {
			firstAt = started
		}
		if completed := group.CompletedAt(); completed.After(lastAt) {
			lastAt = completed
		}

		fmt.Fprintf(&b, "\n## Step %s\n\n", group.Step)
		summary := summarizeGroup(group)
		if summary == "" {
			summary = "(no textual content captured)"
		}
		b.WriteString(summary + "\n")
	}

	body := b.String()
	digest := hashText(body)
	short := digest[:8]

	status := ""
	for i := len(retained) - 1; i >= 0 && status == ""; i-- {
		status = retained[i].Status()
	}

	fm := frontMatter{
		Project:   settings.Project,
		Session:   sessionID,
		Generated: time.Now().UTC().Format(time.RFC3339),
		Events:    eventCount,
		FirstAt:   firstAt.Format(time.RFC3339),
		LastAt:    lastAt.Format(time.RFC3339),
		Status:    nullable(status),
		Hash:      digest,
		Branch:    settings.Branch,
	}

	filename := fmt.Sprintf("transcript-%s-%s.md", sanitizeName(sessionID), short)
	path := filepath.Join(artifactsRoot, filename)
	if err := os.WriteFile(path, []byte(renderFrontMatter(fm)+body), 0o644); err != nil {
		return nil, fmt.Errorf("write transcript: %w", err)
	}
	if err := AppendLog(ingestLog, fmt.Sprintf("write artifact=%s hash=%s", filename, short)); err != nil {
		return nil, err
	}

	return []ArtifactRecord{{
		Filename: filename,
		Step:     "transcript",
		Status:   nullable(status),
		Hash:     digest,
	}}, nil
}
