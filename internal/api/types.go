package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool          `json:"running"`
	PID           int           `json:"pid"`
	StartedAt     string        `json:"startedAt,omitempty"`
	TrashDir      string        `json:"trashDir"`
	LockFilePath  string        `json:"lockFilePath"`
	ListenAddress string        `json:"listenAddress"`
	LogPath       string        `json:"logPath,omitempty"`
	Retention     Retention     `json:"retention"`
	Store         StoreStats    `json:"store"`
	Sweeper       SweeperStatus `json:"sweeper"`
	Journal       JournalStatus `json:"journal"`
	Checks        []CheckResult `json:"checks"`
}

// Retention reports the expiry policy loaded at startup.
type Retention struct {
	DeleteAfterDays int      `json:"deleteAfterDays"`
	FilePath        string   `json:"filePath"`
	Warnings        []string `json:"warnings,omitempty"`
}

// StoreStats summarizes the trash store contents.
type StoreStats struct {
	Entries  int      `json:"entries"`
	Files    int      `json:"files"`
	Pending  int      `json:"pending"`
	Bytes    int64    `json:"bytes"`
	Orphans  []string `json:"orphans,omitempty"`
	Dangling []string `json:"dangling,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// SweeperStatus reports the expiry schedule and the most recent pass.
type SweeperStatus struct {
	Running   bool         `json:"running"`
	Schedule  string       `json:"schedule"`
	NextRun   string       `json:"nextRun,omitempty"`
	LastSweep *SweepResult `json:"lastSweep,omitempty"`
}

// SweepResult describes one expiry pass.
type SweepResult struct {
	ID             string   `json:"id"`
	StartedAt      string   `json:"startedAt"`
	DurationMillis int64    `json:"durationMillis"`
	Scanned        int      `json:"scanned"`
	Expired        int      `json:"expired"`
	Failed         int      `json:"failed"`
	Removed        []string `json:"removed,omitempty"`
	Invalid        []string `json:"invalid,omitempty"`
	Orphans        []string `json:"orphans,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// JournalStatus reports the event journal state.
type JournalStatus struct {
	Enabled bool             `json:"enabled"`
	Path    string           `json:"path,omitempty"`
	Counts  map[string]int64 `json:"counts,omitempty"`
}

// CheckResult mirrors a preflight check outcome.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// HistoryEvent is one journaled move or expiry.
type HistoryEvent struct {
	ID           int64  `json:"id"`
	Kind         string `json:"kind"`
	StoredName   string `json:"storedName,omitempty"`
	OriginalPath string `json:"originalPath,omitempty"`
	OccurredAt   string `json:"occurredAt"`
	Detail       string `json:"detail,omitempty"`
}

// HistoryResponse wraps journal events, newest first.
type HistoryResponse struct {
	Events []HistoryEvent `json:"events"`
}

// SweepResponse wraps an on-demand sweep.
type SweepResponse struct {
	Result SweepResult `json:"result"`
}

// StopResponse acknowledges a shutdown request.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries an API error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
