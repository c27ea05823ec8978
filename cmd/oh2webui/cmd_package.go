package main

import (
	"github.com/spf13/cobra"

	"oh2webui/internal/packager"
)

func newPackageCommand() *cobra.Command {
	var (
		artifactsDir string
		output       string
	)

	cmd := &cobra.Command{
		Use:   "package",
		Short: "Pack an artifacts directory into a reproducible tar.gz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := packager.Archive(artifactsDir, output)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&artifactsDir, "artifacts", "", "Artifacts directory to pack (required)")
	cmd.Flags().StringVar(&output, "output", "", "Tarball path (default: <artifacts>/artifacts.tar.gz)")
	_ = cmd.MarkFlagRequired("artifacts")

	return cmd
}
