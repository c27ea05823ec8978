package webui

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"oh2webui/internal/config"
	"oh2webui/internal/distill"
)

// Prefill variants. VariantStatus instructs the model to append status
// updates to the distilled record; VariantPrefillOnly seeds context without
// instructions.
const (
	VariantStatus      = "3A"
	VariantPrefillOnly = "3B"
)

// ChatOptions configures chat creation for an uploaded session.
type ChatOptions struct {
	SessionID      string
	ArtifactsDir   string
	CollectionID   string
	CollectionName string
	Variant        string
	Status         string
}

// ChatResult reports the created chat.
type ChatResult struct {
	ChatID     string `json:"chat_id"`
	Title      string `json:"title"`
	Variant    string `json:"variant"`
	DryRun     bool   `json:"dry_run"`
	ExportPath string `json:"export_path,omitempty"`
}

// CreateChat builds a prefill from the session manifest and creates a chat
// pointing at the knowledge collection.
func CreateChat(ctx context.Context, opts ChatOptions, settings *config.Settings) (*ChatResult, error) {
	if opts.Variant != VariantStatus && opts.Variant != VariantPrefillOnly {
		return nil, uploadErrorf("unknown chat variant %q (expected %s or %s)", opts.Variant, VariantStatus, VariantPrefillOnly)
	}
	if opts.CollectionID == "" {
		return nil, uploadErrorf("a collection id is required to create a chat")
	}

	manifestPath := filepath.Join(opts.ArtifactsDir, distill.ManifestName)
	manifest, err := distill.LoadManifest(manifestPath)
	if err != nil {
		return nil, uploadErrorf("loading manifest: %v", err)
	}

	client, err := NewClient(settings)
	if err != nil {
		return nil, err
	}

	collectionName := opts.CollectionName
	if collectionName == "" {
		collectionName, err = client.ResolveCollectionName(ctx, opts.CollectionID)
		if err != nil {
			return nil, err
		}
	}

	title := chatTitle(manifest.Project, settings.Branch, opts.SessionID, opts.Status, manifest.GeneratedAt)
	prefill := BuildPrefill(manifest.Artifacts, collectionName, opts.Variant)

	chatID, err := client.CreateChat(ctx, ChatParams{
		CollectionID: opts.CollectionID,
		Title:        title,
		Variant:      opts.Variant,
		Prefill:      prefill,
		SessionID:    opts.SessionID,
	})
	if err != nil {
		return nil, err
	}

	logPath := filepath.Join(opts.ArtifactsDir, distill.IngestLogName)
	_ = distill.AppendLog(logPath, fmt.Sprintf("chat created id=%s variant=%s", chatID, opts.Variant))
	if opts.Variant == VariantStatus && !client.DryRun {
		_ = distill.AppendLog(logPath, fmt.Sprintf("chat completion triggered id=%s", chatID))
	}

	exportPath := ""
	if settings.CaptureChatExport && !client.DryRun {
		destination := filepath.Join(opts.ArtifactsDir, fmt.Sprintf("chat-export-%s.json", chatID))
		exportPath, err = client.DownloadChatExport(ctx, chatID, destination)
		if err != nil {
			_ = distill.AppendLog(logPath, fmt.Sprintf("chat export failed id=%s detail=%v", chatID, err))
			exportPath = ""
		} else {
			_ = distill.AppendLog(logPath, fmt.Sprintf("chat export saved id=%s path=%s", chatID, filepath.Base(exportPath)))
		}
	}

	return &ChatResult{
		ChatID:     chatID,
		Title:      title,
		Variant:    opts.Variant,
		DryRun:     client.DryRun,
		ExportPath: exportPath,
	}, nil
}

// chatTitle renders "oh/<project>[/branch]/<stamp> – <session> – <status>".
func chatTitle(project, branch, sessionID, status string, generatedAt time.Time) string {
	scope := "oh/" + project
	if branch != "" {
		scope += "/" + branch
	}
	when := generatedAt
	if when.IsZero() {
		when = time.Now().UTC()
	}
	if status == "" {
		status = "unknown"
	}
	return fmt.Sprintf("%s/%s – %s – %s", scope, when.UTC().Format("2006-01-02 15:04"), sessionID, status)
}
