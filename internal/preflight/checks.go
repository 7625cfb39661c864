package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"trashcan/internal/config"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minBytes available to unprivileged users.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	available := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s available", FormatBytes(available))
	if available < minBytes {
		return Result{Name: name, Detail: detail + fmt.Sprintf(" (below %s)", FormatBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSameFilesystem reports whether a and b live on the same device.
// Entries are moved by rename, which fails across filesystems.
func CheckSameFilesystem(name, a, b string) Result {
	var statA, statB unix.Stat_t
	if err := unix.Stat(a, &statA); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", a, err)}
	}
	if err := unix.Stat(b, &statB); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", b, err)}
	}
	if statA.Dev != statB.Dev {
		return Result{Name: name, Detail: fmt.Sprintf("%s is on a different filesystem; files there cannot be trashed", a)}
	}
	return Result{Name: name, Passed: true, Detail: "same filesystem as trash"}
}

// CheckRetentionFile verifies that the retention file parses and reports the
// effective policy.
func CheckRetentionFile(path string) Result {
	const name = "Retention policy"

	retention, err := config.LoadRetention(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s missing (default %q is written on start)", path, strings.TrimSpace(config.DefaultRetentionContents))}
		}
		return Result{Name: name, Detail: err.Error()}
	}
	detail := fmt.Sprintf("delete after %d day(s)", retention.DeleteAfter)
	if len(retention.Warnings) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s; %d unreadable line(s)", detail, len(retention.Warnings))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
