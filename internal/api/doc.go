// Package api defines wire-format types, converters, and the HTTP client for
// the daemon control API. It translates store snapshots, sweep results, and
// journal events into transport-friendly DTOs the CLI renders without
// touching internal types.
//
// # Key Types
//
// DaemonStatus: running state, store counts, retention, sweeper schedule,
// journal counts, and preflight checks.
//
// SweepResult: the outcome of one expiry pass.
//
// HistoryEvent/HistoryResponse: journaled moves and expiries, newest first.
//
// # Converters
//
// FromSweepResult, FromEvent, FromSnapshot, FromChecks.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds in
// UTC. Durations are carried as integer milliseconds.
package api
