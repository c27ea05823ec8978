package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"oh2webui/internal/config"
	"oh2webui/internal/webui"
)

func newUploadCommand() *cobra.Command {
	var (
		sessionID    string
		artifactsDir string
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload session artifacts into a knowledge collection",
		Long: `Upload validates the run.json manifest against its schema, uploads
every listed artifact, waits for server-side processing, and gathers the
uploads into a new knowledge collection. Without a configured base URL
and API token the command runs dry and reports synthetic identifiers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}
			if artifactsDir == "" {
				artifactsDir = filepath.Join("artifacts", sessionID)
			}

			result, err := webui.UploadArtifacts(cmd.Context(), sessionID, artifactsDir, settings)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session identifier (required)")
	cmd.Flags().StringVar(&artifactsDir, "artifacts", "", "Artifacts directory (default: artifacts/<session>)")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}
