package preflight

import (
	"context"
	"os"

	"trashcan/internal/config"
)

// MinFreeBytes is the free space below which the trash filesystem is reported.
const MinFreeBytes = 64 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Trash directory", cfg.Paths.TrashDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckFreeSpace("Trash free space", cfg.Paths.TrashDir, MinFreeBytes),
		CheckRetentionFile(cfg.RetentionPath()),
	}

	// Files under $HOME are the common case; a store on another filesystem
	// cannot receive them by rename.
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		results = append(results, CheckSameFilesystem("Home filesystem", home, cfg.Paths.TrashDir))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
