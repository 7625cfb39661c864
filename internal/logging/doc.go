// Package logging assembles structured slog loggers and formatting helpers used
// across the trash daemon and CLI.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so connection handlers and
// sweeps can tag log lines with their correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
