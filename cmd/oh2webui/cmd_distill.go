package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"oh2webui/internal/config"
	"oh2webui/internal/distill"
)

func newDistillCommand() *cobra.Command {
	var (
		sessionID  string
		rawDir     string
		destDir    string
		transcript bool
	)

	cmd := &cobra.Command{
		Use:   "distill",
		Short: "Distill raw session events into Markdown artifacts",
		Long: `Distill loads the raw event files of a session, groups events by
step, and renders deduplicated Markdown artifacts plus a run.json
manifest. With --transcript a single consolidated transcript is rendered
instead of per-step artifacts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}
			if rawDir == "" {
				rawDir = filepath.Join("sessions", sessionID)
			}
			if destDir == "" {
				destDir = filepath.Join("artifacts", sessionID)
			}

			strategy := distill.StrategyPerGroup
			if transcript {
				strategy = distill.StrategyTranscript
			}

			result, err := distill.Session(sessionID, rawDir, destDir, settings, strategy)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session identifier (required)")
	cmd.Flags().StringVar(&rawDir, "raw", "", "Directory holding raw event files (default: sessions/<session>)")
	cmd.Flags().StringVar(&destDir, "dst", "", "Artifacts output directory (default: artifacts/<session>)")
	cmd.Flags().BoolVar(&transcript, "transcript", false, "Render one consolidated transcript instead of per-step artifacts")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}
