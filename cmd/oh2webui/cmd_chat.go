package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"oh2webui/internal/config"
	"oh2webui/internal/webui"
)

func newChatCommand() *cobra.Command {
	var opts webui.ChatOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Create a chat seeded with a session's knowledge collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}
			if opts.ArtifactsDir == "" {
				opts.ArtifactsDir = filepath.Join("artifacts", opts.SessionID)
			}

			result, err := webui.CreateChat(cmd.Context(), opts, settings)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&opts.SessionID, "session", "", "Session identifier (required)")
	cmd.Flags().StringVar(&opts.ArtifactsDir, "artifacts", "", "Artifacts directory (default: artifacts/<session>)")
	cmd.Flags().StringVar(&opts.CollectionID, "collection", "", "Knowledge collection id from a prior upload (required)")
	cmd.Flags().StringVar(&opts.CollectionName, "collection-name", "", "Knowledge collection name, used in the prefill")
	cmd.Flags().StringVar(&opts.Variant, "variant", webui.VariantStatus, "Prefill variant: 3A (status updates) or 3B (prefill only)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Overall session status shown in the chat title")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("collection")

	return cmd
}
