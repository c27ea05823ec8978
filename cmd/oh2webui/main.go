package main

import (
	"errors"
	"fmt"
	"os"

	"oh2webui/internal/distill"
	"oh2webui/internal/grouper"
)

// Exit codes for different failure modes
const (
	ExitSuccess  = 0 // Pipeline completed
	ExitPipeline = 1 // Event grouping or distillation failed
	ExitError    = 2 // Configuration or runtime error
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		// Check error type to determine exit code
		var groupingErr *grouper.GroupingError
		var distillErr *distill.DistillationError
		if errors.As(err, &groupingErr) || errors.As(err, &distillErr) {
			os.Exit(ExitPipeline)
		}

		// All other errors are configuration/runtime errors
		os.Exit(ExitError)
	}
}
