package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"oh2webui/internal/config"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oh2webui",
		Short: "oh2webui - distill agent session logs into a knowledge base",
		Long: `oh2webui turns raw agent session event logs into deduplicated
Markdown artifacts and publishes them to an Open WebUI knowledge base.

The pipeline runs in stages: extract a stored session, distill its events
into artifacts plus a run.json manifest, package the result, upload it
into a knowledge collection, and open a chat seeded with the collection.`,
		Version:      config.Version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newExtractCommand())
	cmd.AddCommand(newDistillCommand())
	cmd.AddCommand(newPackageCommand())
	cmd.AddCommand(newUploadCommand())
	cmd.AddCommand(newChatCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}

// printJSON writes the command result object to stdout.
func printJSON(cmd *cobra.Command, result any) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	data = append(data, '\n')
	if _, err := cmd.OutOrStdout().Write(data); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
