package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"trashcan/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Trashcan", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Trashcan:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Trashcan", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestStatusSections(t *testing.T) {
	status := api.DaemonStatus{
		Running:   true,
		PID:       42,
		TrashDir:  "/home/u/.local/share/trashcan",
		Retention: api.Retention{DeleteAfterDays: 7, Warnings: []string{`line 2: "junk"`}},
		Store:     api.StoreStats{Entries: 3, Bytes: 2048, Pending: 1, Orphans: []string{"x"}},
		Sweeper: api.SweeperStatus{
			Running:   true,
			Schedule:  "@every 1h",
			LastSweep: &api.SweepResult{StartedAt: "2026-01-02T03:04:05.000Z", Scanned: 3, Expired: 1, Failed: 1},
		},
		Checks: []api.CheckResult{{Name: "Trash directory", Passed: false, Detail: "not writable"}},
	}

	sections := statusSections(status, false)
	titles := make([]string, 0, len(sections))
	var all []string
	for _, section := range sections {
		titles = append(titles, section.title)
		all = append(all, section.lines...)
	}
	if strings.Join(titles, ",") != "Daemon,Store,Retention,Sweeper,Checks,Journal" {
		t.Fatalf("titles = %v", titles)
	}
	text := strings.Join(all, "\n")
	for _, want := range []string{
		"[OK] Running (pid 42)",
		"[INFO] 3 (2.0 KiB)",
		"[WARN] 1 interrupted moves",
		"[WARN] 1 files without a record",
		"[INFO] 7 day(s)",
		`[WARN] line 2: "junk"`,
		"[OK] Scheduled @every 1h",
		"expired 1, 1 failed",
		"[ERROR] not writable",
		"[INFO] Disabled",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected status to contain %q:\n%s", want, text)
		}
	}
}

func TestStatusSectionsOffline(t *testing.T) {
	sections := statusSections(api.DaemonStatus{Store: api.StoreStats{Error: "permission denied"}}, false)
	text := strings.Join(append(sections[0].lines, sections[1].lines...), "\n")
	if !strings.Contains(text, "Not running") || !strings.Contains(text, "[ERROR] permission denied") {
		t.Fatalf("unexpected offline status:\n%s", text)
	}
}

func TestHistoryTable(t *testing.T) {
	out := renderTable(historyColumns, historyRows([]api.HistoryEvent{
		{ID: 9, Kind: "expired", StoredName: "a.txt.1", OriginalPath: "/tmp/a.txt", OccurredAt: "2026-01-02T03:04:05.000Z"},
	}))
	for _, want := range []string{"a.txt.1", "/tmp/a.txt", "expired"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected table to contain %q:\n%s", want, out)
		}
	}
}

func TestLocalTime(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got, want := localTime(api.FormatTime(ts)), ts.Local().Format("2006-01-02 15:04:05"); got != want {
		t.Fatalf("localTime = %q, want %q", got, want)
	}
	if got := localTime("yesterday"); got != "yesterday" {
		t.Fatalf("unparsable values pass through, got %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
