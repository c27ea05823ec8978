package webui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"oh2webui/internal/config"
	"oh2webui/internal/distill"
	"oh2webui/internal/validation"
)

// UploadResult reports what the upload pipeline produced.
type UploadResult struct {
	SessionID      string   `json:"session"`
	CollectionID   string   `json:"collection_id"`
	CollectionName string   `json:"collection_name"`
	FileIDs        []string `json:"file_ids"`
	DryRun         bool     `json:"dry_run"`
}

// UploadArtifacts validates the manifest, uploads every artifact it lists,
// waits for server-side processing, and gathers the uploads into a fresh
// knowledge collection. Progress is appended to the session ingest log.
func UploadArtifacts(ctx context.Context, sessionID, artifactsDir string, settings *config.Settings) (*UploadResult, error) {
	manifestPath := filepath.Join(artifactsDir, distill.ManifestName)
	if _, err := os.Stat(manifestPath); err != nil {
		return nil, uploadErrorf("run.json manifest is required for upload: %v", err)
	}
	schemaErrs, err := validation.ValidateManifestFile(manifestPath)
	if err != nil {
		return nil, uploadErrorf("manifest validation failed: %v", err)
	}
	if len(schemaErrs) > 0 {
		return nil, uploadErrorf("manifest failed validation: %s", strings.Join(schemaErrs, "; "))
	}

	manifest, err := distill.LoadManifest(manifestPath)
	if err != nil {
		return nil, uploadErrorf("loading manifest: %v", err)
	}
	if len(manifest.Artifacts) == 0 {
		return nil, uploadErrorf("manifest lists no artifacts to upload")
	}

	client, err := NewClient(settings)
	if err != nil {
		return nil, err
	}
	logPath := filepath.Join(artifactsDir, distill.IngestLogName)

	fileIDs := make([]string, 0, len(manifest.Artifacts))
	for _, record := range manifest.Artifacts {
		artifactPath := filepath.Join(artifactsDir, record.Filename)
		if _, err := os.Stat(artifactPath); err != nil {
			return nil, uploadErrorf("artifact %s listed in manifest is missing: %v", record.Filename, err)
		}

		fileID, err := client.UploadMarkdown(ctx, artifactPath)
		if err != nil {
			return nil, err
		}
		_ = distill.AppendLog(logPath, fmt.Sprintf("upload requested file=%s id=%s", record.Filename, fileID))

		status, err := client.PollFile(ctx, fileID)
		if err != nil {
			return nil, err
		}
		if !terminalStatuses[status] {
			return nil, uploadErrorf("file %s finished in state %q", fileID, status)
		}
		_ = distill.AppendLog(logPath, fmt.Sprintf("upload processed file=%s id=%s", record.Filename, fileID))
		fileIDs = append(fileIDs, fileID)
	}

	name := collectionName(manifest.Project, sessionID, manifest.GeneratedAt)
	description := fmt.Sprintf("Artifacts for session %s (%s)", sessionID, manifest.Project)
	collectionID, err := client.CreateCollection(ctx, name, description)
	if err != nil {
		return nil, err
	}
	_ = distill.AppendLog(logPath, fmt.Sprintf("collection ready id=%s name=%s", collectionID, name))

	for i, fileID := range fileIDs {
		if err := client.AttachFile(ctx, collectionID, fileID); err != nil {
			return nil, err
		}
		_ = distill.AppendLog(logPath, fmt.Sprintf("collection attach id=%s file=%s", collectionID, manifest.Artifacts[i].Filename))
	}

	return &UploadResult{
		SessionID:      sessionID,
		CollectionID:   collectionID,
		CollectionName: name,
		FileIDs:        fileIDs,
		DryRun:         client.DryRun,
	}, nil
}

// collectionName builds a unique, sortable collection name. The random
// suffix keeps repeated uploads of the same session distinct.
func collectionName(project, sessionID string, generatedAt time.Time) string {
	when := generatedAt
	if when.IsZero() {
		when = time.Now().UTC()
	}
	return fmt.Sprintf("oh:%s:%s:%s-%s", project, sessionID, when.UTC().Format("20060102"), hexID()[:6])
}
