package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"trashcan/internal/api"
	"trashcan/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type statusSection struct {
	title string
	lines []string
}

// statusSections renders a daemon status snapshot as labeled sections.
func statusSections(status api.DaemonStatus, colorize bool) []statusSection {
	line := func(label string, kind statusKind, message string) string {
		return renderStatusLine(label, kind, message, colorize)
	}

	daemon := statusSection{title: "Daemon"}
	if status.Running {
		detail := "Running"
		if status.PID > 0 {
			detail = fmt.Sprintf("Running (pid %d)", status.PID)
		}
		daemon.lines = append(daemon.lines, line("Trashcan", statusOK, detail))
		if status.StartedAt != "" {
			daemon.lines = append(daemon.lines, line("Started", statusInfo, status.StartedAt))
		}
	} else {
		daemon.lines = append(daemon.lines, line("Trashcan", statusWarn, "Not running (run `trashcan start`)"))
	}
	daemon.lines = append(daemon.lines, line("Listen address", statusInfo, status.ListenAddress))
	if status.LogPath != "" {
		daemon.lines = append(daemon.lines, line("Log file", statusInfo, status.LogPath))
	}

	store := statusSection{title: "Store"}
	store.lines = append(store.lines, line("Trash directory", statusInfo, status.TrashDir))
	if status.Store.Error != "" {
		store.lines = append(store.lines, line("Contents", statusError, status.Store.Error))
	} else {
		store.lines = append(store.lines,
			line("Entries", statusInfo, fmt.Sprintf("%d (%s)", status.Store.Entries, preflight.FormatBytes(uint64(max(status.Store.Bytes, 0))))),
		)
		if status.Store.Pending > 0 {
			store.lines = append(store.lines, line("Pending", statusWarn, fmt.Sprintf("%d interrupted moves (recovered at next start)", status.Store.Pending)))
		}
		if n := len(status.Store.Orphans); n > 0 {
			store.lines = append(store.lines, line("Orphans", statusWarn, fmt.Sprintf("%d files without a record", n)))
		}
		if n := len(status.Store.Dangling); n > 0 {
			store.lines = append(store.lines, line("Dangling", statusWarn, fmt.Sprintf("%d records without a file", n)))
		}
	}

	retention := statusSection{title: "Retention"}
	retention.lines = append(retention.lines,
		line("Delete after", statusInfo, fmt.Sprintf("%d day(s)", status.Retention.DeleteAfterDays)),
		line("Policy file", statusInfo, status.Retention.FilePath),
	)
	for _, warning := range status.Retention.Warnings {
		retention.lines = append(retention.lines, line("Ignored line", statusWarn, warning))
	}

	sweeper := statusSection{title: "Sweeper"}
	sweeperKind, sweeperDetail := statusInfo, "Inactive (daemon not running)"
	if status.Sweeper.Running {
		sweeperKind, sweeperDetail = statusOK, "Scheduled "+status.Sweeper.Schedule
	} else if status.Running {
		sweeperKind, sweeperDetail = statusWarn, "Not scheduled"
	}
	sweeper.lines = append(sweeper.lines, line("Schedule", sweeperKind, sweeperDetail))
	if status.Sweeper.NextRun != "" {
		sweeper.lines = append(sweeper.lines, line("Next run", statusInfo, status.Sweeper.NextRun))
	}
	if last := status.Sweeper.LastSweep; last != nil {
		kind := statusOK
		if last.Failed > 0 || last.Error != "" {
			kind = statusWarn
		}
		sweeper.lines = append(sweeper.lines, line("Last sweep", kind, sweepSummary(*last)))
	}

	checks := statusSection{title: "Checks"}
	for _, check := range status.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		checks.lines = append(checks.lines, line(check.Name, kind, check.Detail))
	}

	journal := statusSection{title: "Journal"}
	if status.Journal.Enabled {
		journal.lines = append(journal.lines, line("Events", statusOK, status.Journal.Path))
	} else {
		journal.lines = append(journal.lines, line("Events", statusInfo, "Disabled"))
	}

	return []statusSection{daemon, store, retention, sweeper, checks, journal}
}

func sweepSummary(result api.SweepResult) string {
	if result.Error != "" {
		return "failed: " + result.Error
	}
	summary := fmt.Sprintf("%s: scanned %d, expired %d", result.StartedAt, result.Scanned, result.Expired)
	if result.Failed > 0 {
		summary += fmt.Sprintf(", %d failed", result.Failed)
	}
	return summary
}
