package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// PruneLogs deletes files in dir whose names match pattern and whose
// modification time is more than retentionDays old. Paths in keep are never
// removed. A retentionDays of zero or less disables pruning. It returns how
// many files were removed.
func PruneLogs(logger *slog.Logger, dir, pattern string, retentionDays int, keep ...string) int {
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		WarnWithContext(logger, "log prune pattern invalid", "log_prune_failed",
			String("pattern", pattern),
			Error(err),
			String(FieldImpact, "old run logs are kept"),
		)
		return 0
	}

	kept := make([]string, 0, len(keep))
	for _, path := range keep {
		kept = append(kept, filepath.Clean(path))
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, path := range matches {
		if slices.Contains(kept, filepath.Clean(path)) {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "old run log not removed", "log_prune_failed",
				String("path", path),
				Error(err),
				String(FieldImpact, "the file stays in log_dir"),
				String(FieldErrorHint, "check ownership of log_dir"),
			)
			continue
		}
		removed++
	}
	return removed
}
