package distill

import (
	"fmt"
	"os"
	"time"
)

// AppendLog appends one timestamped line to the ingest log at path,
// creating the file if needed. The log is never truncated or rewritten, so
// repeated runs in the same directory accumulate a full audit trail.
func AppendLog(path, message string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ingest log: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "[%s] %s\n", time.Now().UTC().Format(time.RFC3339), message); err != nil {
		return fmt.Errorf("append ingest log: %w", err)
	}
	return nil
}
