// Package extract copies a stored agent session into a working directory.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
)

// ExtractionError indicates the requested session cannot be extracted.
type ExtractionError struct {
	msg string
}

func (e *ExtractionError) Error() string { return e.msg }

// Result describes the outcome of one extraction.
type Result struct {
	SessionID   string `json:"session"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Copied      bool   `json:"copied"`
}

// Session copies the stored session directory into destination. The
// operation is idempotent: an existing destination is reused unless
// overwrite is set, in which case it is replaced wholesale.
func Session(sessionID, sourceRoot, destination string, overwrite bool) (*Result, error) {
	source := filepath.Join(sourceRoot, sessionID)
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return nil, &ExtractionError{msg: fmt.Sprintf("session %q not found under %s", sessionID, sourceRoot)}
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return nil, fmt.Errorf("creating destination parent: %w", err)
	}

	if _, err := os.Stat(destination); err == nil {
		if !overwrite {
			return &Result{SessionID: sessionID, Source: source, Destination: destination, Copied: false}, nil
		}
		if err := os.RemoveAll(destination); err != nil {
			return nil, fmt.Errorf("removing existing destination: %w", err)
		}
	}

	if err := os.CopyFS(destination, os.DirFS(source)); err != nil {
		return nil, fmt.Errorf("copying session: %w", err)
	}

	return &Result{SessionID: sessionID, Source: source, Destination: destination, Copied: true}, nil
}
