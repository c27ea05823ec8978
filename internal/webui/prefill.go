package webui

import (
	"fmt"
	"strings"

	"oh2webui/internal/distill"
)

// maxPrefillArtifacts bounds the inline artifact preview; the rest stays
// reachable through the knowledge collection.
const maxPrefillArtifacts = 20

// BuildPrefill renders the first user message for a session chat. Artifacts
// are listed newest first.
func BuildPrefill(artifacts []distill.ArtifactRecord, collectionName, variant string) string {
	var b strings.Builder
	b.WriteString("Session artifacts are attached via the knowledge collection")
	if collectionName != "" {
		fmt.Fprintf(&b, " %q", collectionName)
	}
	b.WriteString(".\n\n")

	shown := len(artifacts)
	if shown > maxPrefillArtifacts {
		shown = maxPrefillArtifacts
	}
	for i := 0; i < shown; i++ {
		record := artifacts[len(artifacts)-1-i]
		status := "unknown"
		if record.Status != nil && *record.Status != "" {
			status = *record.Status
		}
		fmt.Fprintf(&b, "- Step %s: %s [%s]\n", record.Step, record.Filename, status)
	}
	if extra := len(artifacts) - shown; extra > 0 {
		fmt.Fprintf(&b, "… %d additional artifacts not shown (see knowledge collection)\n", extra)
	}
	b.WriteString("\n")

	switch variant {
	case VariantStatus:
		b.WriteString("Review the attached artifacts. When a step changes state, reply with a short status update naming the step and its new status.\n")
	default:
		b.WriteString("The attached artifacts describe the full session. No response is needed until asked.\n")
	}
	return b.String()
}
