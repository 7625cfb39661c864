package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultRetentionContents is written when the retention file does not exist.
const DefaultRetentionContents = "delete_after:1\n"

// Retention is the process-wide expiry policy. It is loaded once at startup
// and passed by value to the components that need it.
type Retention struct {
	// DeleteAfter is the retention threshold in days.
	DeleteAfter int
	// Warnings lists lines that were skipped while parsing.
	Warnings []string
}

const day = 24 * time.Hour

// MaxDeleteAfterDays is the largest retention a time.Duration can hold.
const MaxDeleteAfterDays = math.MaxInt64 / int64(day)

// Threshold converts DeleteAfter into a duration, saturating at the largest
// representable duration.
func (r Retention) Threshold() time.Duration {
	if int64(r.DeleteAfter) > MaxDeleteAfterDays {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(r.DeleteAfter) * day
}

// EnsureRetentionFile materializes the default retention file when absent.
// It reports whether a file was created.
func EnsureRetentionFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return false, fmt.Errorf("retention file %q is a directory", path)
		}
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat retention file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create retention directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultRetentionContents), 0o644); err != nil {
		return false, fmt.Errorf("write default retention file: %w", err)
	}
	return true, nil
}

// LoadRetention reads a key:value retention file. A read failure is returned
// to the caller, which must treat it as fatal.
func LoadRetention(path string) (Retention, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Retention{}, fmt.Errorf("read retention file %s: %w", path, err)
	}
	entries, warnings := ParseKeyValues(string(data))
	return Retention{
		DeleteAfter: parseDeleteAfter(entries["delete_after"]),
		Warnings:    warnings,
	}, nil
}

// ParseKeyValues parses key:value lines. Blank lines and lines starting with
// '#' are ignored; lines without a ':' are returned as warnings. Later keys
// overwrite earlier ones.
func ParseKeyValues(contents string) (map[string]string, []string) {
	entries := make(map[string]string)
	var warnings []string
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			warnings = append(warnings, fmt.Sprintf("could not read line %q: no \":\" found", line))
			continue
		}
		entries[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return entries, warnings
}

// parseDeleteAfter maps missing, unparsable, and negative values to the
// default and clamps values past MaxDeleteAfterDays.
func parseDeleteAfter(raw string) int {
	if raw == "" {
		return DefaultDeleteAfterDays
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if errors.Is(err, strconv.ErrRange) && value > 0 {
		return int(MaxDeleteAfterDays)
	}
	if err != nil || value < 0 {
		return DefaultDeleteAfterDays
	}
	return int(min(value, MaxDeleteAfterDays))
}
