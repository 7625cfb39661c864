// Package config loads, normalizes, and validates trashcan configuration data.
//
// Two sources feed the daemon. The TOML settings file describes plumbing:
// where the trash store and logs live, which loopback addresses the daemon
// binds, how often the expiry sweeper runs, and how logs are formatted. The
// retention file inside the trash store is a plain key:value document that
// carries the delete_after threshold, loaded once at startup into an immutable
// Retention value.
//
// Always obtain settings through this package so downstream code receives
// expanded absolute paths and clear validation errors.
package config
