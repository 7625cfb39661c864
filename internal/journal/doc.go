// Package journal persists an append-only history of trash events (moves,
// failed moves, expiries) in SQLite so operators can inspect what the daemon
// did after the fact. The trash store itself never depends on the journal.
package journal
