// Package testsupport builds isolated configurations, stores and files for
// package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"trashcan/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Both listeners bind ephemeral loopback ports.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.TrashDir = filepath.Join(base, "trash")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Daemon.Listen = "127.0.0.1:0"
	cfgVal.Daemon.APIBind = "127.0.0.1:0"
	cfgVal.Daemon.APIToken = ""
	cfgVal.Logging.Format = "json"
	cfgVal.Logging.Level = "error"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithoutAPI disables the control API.
func WithoutAPI() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.APIBind = ""
	}
}

// WithoutJournal disables the event journal.
func WithoutJournal() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.JournalEnabled = false
	}
}

// WithAPIToken requires bearer authentication on the control API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.APIToken = token
	}
}

// WithRetentionDays writes a retention file holding delete_after:days.
func WithRetentionDays(days int) ConfigOption {
	return func(b *configBuilder) {
		path := b.cfg.RetentionPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			b.t.Fatalf("mkdir retention dir: %v", err)
		}
		contents := "delete_after:" + strconv.Itoa(days) + "\n"
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			b.t.Fatalf("write retention file: %v", err)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.TrashDir)
}
