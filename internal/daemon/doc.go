// Package daemon coordinates the long-running trash process.
//
// It wires the trash store, the client listener, the expiry sweeper, the
// event journal, and the control API into a single lifecycle with flock-based
// locking so only one daemon operates a store at a time. Startup recovers
// interrupted moves before the listener accepts clients.
//
// Keep orchestration logic here: moving, expiring, and journaling live in
// their own packages while the daemon focuses on startup, shutdown, and
// status reporting.
package daemon
