package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"oh2webui/internal/config"
	"oh2webui/internal/extract"
)

func newExtractCommand() *cobra.Command {
	var (
		sessionID string
		sourceDir string
		destDir   string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Copy a stored session into a working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}
			if sourceDir == "" {
				sourceDir = settings.SessionsDir
			}
			if destDir == "" {
				destDir = filepath.Join("sessions", sessionID)
			}

			result, err := extract.Session(sessionID, sourceDir, destDir, overwrite)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session identifier (required)")
	cmd.Flags().StringVar(&sourceDir, "src", "", "Directory holding stored sessions (default: configured sessions dir)")
	cmd.Flags().StringVar(&destDir, "dst", "", "Destination directory (default: sessions/<session>)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing destination")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}
