package api

import (
	"maps"
	"time"

	"trashcan/internal/expiry"
	"trashcan/internal/journal"
	"trashcan/internal/preflight"
	"trashcan/internal/trash"
)

// FormatTime renders t in the API timestamp format. Zero times render empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses an API timestamp. Empty strings yield the zero time.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateTimeFormat, value)
}

// FromSweepResult converts a sweep result to its API representation.
func FromSweepResult(result expiry.Result, err error) SweepResult {
	dto := SweepResult{
		ID:             result.ID,
		StartedAt:      FormatTime(result.StartedAt),
		DurationMillis: result.Duration.Milliseconds(),
		Scanned:        result.Scanned,
		Expired:        result.Expired,
		Failed:         result.Failed,
		Removed:        result.Removed,
		Invalid:        result.Invalid,
		Orphans:        result.Orphans,
	}
	if err != nil {
		dto.Error = err.Error()
	}
	return dto
}

// FromEvent converts a journal event to its API representation.
func FromEvent(event journal.Event) HistoryEvent {
	return HistoryEvent{
		ID:           event.ID,
		Kind:         string(event.Kind),
		StoredName:   event.StoredName,
		OriginalPath: event.OriginalPath,
		OccurredAt:   FormatTime(event.OccurredAt),
		Detail:       event.Detail,
	}
}

// FromEvents converts journal events preserving order.
func FromEvents(events []journal.Event) []HistoryEvent {
	out := make([]HistoryEvent, 0, len(events))
	for _, event := range events {
		out = append(out, FromEvent(event))
	}
	return out
}

// FromSnapshot converts a store snapshot.
func FromSnapshot(snapshot trash.Snapshot) StoreStats {
	return StoreStats{
		Entries:  snapshot.Entries,
		Files:    snapshot.Files,
		Pending:  snapshot.Pending,
		Bytes:    snapshot.Bytes,
		Orphans:  snapshot.Orphans,
		Dangling: snapshot.Dangling,
	}
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

// FromCounts converts journal counts keyed by kind.
func FromCounts(counts map[journal.Kind]int64) map[string]int64 {
	if len(counts) == 0 {
		return nil
	}
	out := make(map[string]int64, len(counts))
	for kind, n := range maps.All(counts) {
		out[string(kind)] = n
	}
	return out
}
